// Package metadata reports completed jobs to the metadata service. When no
// save URL is configured the noop implementation is used and publishing
// proceeds without the callback.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hlsforge/internal/config"
	"hlsforge/internal/services"
)

const userAgent = "hlsforge/0.1.0"

// Asset type labels used in save payloads.
const (
	AssetTypeRendition = "rendition"
	AssetTypeMaster    = "master"
)

// Asset describes one published artifact of a video. Index orders rendition
// playlists lowest to highest; the master carries the next index.
type Asset struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// Save describes one completed video. RootPath is the stable object-store
// prefix the receiving side keys on, so repeated delivery overwrites rather
// than duplicates.
type Save struct {
	VideoID         string  `json:"video_id"`
	RootPath        string  `json:"root_path"`
	PlaybackURL     string  `json:"playback_url"`
	DurationSeconds float64 `json:"duration_seconds"`
	Assets          []Asset `json:"assets"`
	CompletedAt     string  `json:"completed_at"`
}

// Service defines the metadata callback surface.
type Service interface {
	SaveCompleted(ctx context.Context, save Save) error
}

// NewService builds a metadata client when a save URL is configured, a noop
// otherwise.
func NewService(cfg *config.Config) Service {
	url := strings.TrimSpace(cfg.Metadata.SaveURL)
	if !cfg.Metadata.Enabled || url == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Metadata.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpService{
		url:    url,
		token:  strings.TrimSpace(cfg.Metadata.AuthToken),
		client: &http.Client{Timeout: timeout},
	}
}

type httpService struct {
	url    string
	token  string
	client *http.Client
}

func (s *httpService) SaveCompleted(ctx context.Context, save Save) error {
	if strings.TrimSpace(save.VideoID) == "" {
		return services.Wrap(services.ErrPublish, "metadata", "save completed", "video id missing", nil)
	}
	if strings.TrimSpace(save.RootPath) == "" {
		return services.Wrap(services.ErrPublish, "metadata", "save completed", "root path missing", nil)
	}
	if save.CompletedAt == "" {
		save.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(save)
	if err != nil {
		return services.Wrap(services.ErrPublish, "metadata", "save completed", "encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrPublish, "metadata", "save completed", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrPublish, "metadata", "save completed", "metadata service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrPublish, "metadata", "save completed",
			fmt.Sprintf("metadata service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	return nil
}

type noopService struct{}

func (noopService) SaveCompleted(ctx context.Context, save Save) error {
	return nil
}
