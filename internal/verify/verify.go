// Package verify inspects the output tree the encoder produced before
// anything is published: the master playlist must reference exactly the
// renditions the source is eligible for, every referenced rendition playlist
// must exist, and every segment must be present and non-empty. Verification
// failures send the job back through the encoder.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hlsforge/internal/config"
	"hlsforge/internal/encoding"
	"hlsforge/internal/hls"
	"hlsforge/internal/logging"
	"hlsforge/internal/media/ladder"
	"hlsforge/internal/media/probe"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
)

var verifyProbe = probe.Inspect

// Handler implements the verification stage.
type Handler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// New constructs the verification handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Handler {
	return &Handler{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "verify")}
}

// SetLogger installs the stage-scoped logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Prepare confirms the job carries an output directory to inspect.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	if strings.TrimSpace(job.OutputDir) == "" {
		return services.Wrap(services.ErrVerification, "verify", "resolve output",
			"job has no output directory; encoding must run first", nil)
	}
	return nil
}

// Execute walks the output tree. On success the job's duration is replaced
// with the sum of the encoded segment durations, which is what players will
// actually see. On failure the tree is discarded so the encoder retry starts
// clean.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Verifying", "Checking playlists and segments", 10)

	if err := h.inspect(ctx, job); err != nil {
		if discardErr := encoding.DiscardOutput(job); discardErr != nil {
			h.logger.Warn("failed to discard rejected output tree",
				logging.String(logging.FieldVideoID, job.VideoID),
				logging.Error(discardErr))
		}
		return err
	}

	job.SetProgress("Verifying", "Output tree verified", 100)
	return nil
}

func (h *Handler) inspect(ctx context.Context, job *queue.Job) error {
	masterPath := filepath.Join(job.OutputDir, "master.m3u8")
	master, err := hls.ParseMasterFile(masterPath)
	if err != nil {
		return services.Wrap(services.ErrVerification, "verify", "parse master",
			fmt.Sprintf("master playlist unreadable: %v", err), err)
	}
	if len(master.Variants) == 0 {
		return services.Wrap(services.ErrVerification, "verify", "parse master",
			"master playlist references no variant streams", nil)
	}
	if err := h.checkRenditionSet(ctx, job, master); err != nil {
		return err
	}

	var totalDuration float64
	segmentCount := 0
	for _, variant := range master.Variants {
		playlistPath := filepath.Join(job.OutputDir, variant.URI)
		media, err := hls.ParseMediaFile(playlistPath)
		if err != nil {
			return services.Wrap(services.ErrVerification, "verify", "parse rendition",
				fmt.Sprintf("rendition playlist %s unreadable: %v", variant.URI, err), err)
		}
		if len(media.Segments) == 0 {
			return services.Wrap(services.ErrVerification, "verify", "check segments",
				fmt.Sprintf("rendition playlist %s lists no segments", variant.URI), nil)
		}
		for _, segment := range media.Segments {
			segmentPath := filepath.Join(job.OutputDir, segment.URI)
			info, err := os.Stat(segmentPath)
			if err != nil {
				return services.Wrap(services.ErrVerification, "verify", "check segments",
					fmt.Sprintf("segment %s missing", segment.URI), err)
			}
			if info.Size() == 0 {
				return services.Wrap(services.ErrVerification, "verify", "check segments",
					fmt.Sprintf("segment %s is empty", segment.URI), nil)
			}
		}
		segmentCount += len(media.Segments)
		// All renditions share the same timeline; any one gives the duration.
		totalDuration = media.TotalDuration()
	}

	job.DurationSeconds = totalDuration
	h.logger.Info("output tree verified",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.Int("variants", len(master.Variants)),
		logging.Int("segments", segmentCount),
		logging.Float64("duration_seconds", totalDuration),
	)
	return nil
}

// checkRenditionSet re-derives the rendition set the source is eligible for
// and requires the master to reference exactly that set. A master that
// silently dropped (or invented) a rendition must never reach publishing.
func (h *Handler) checkRenditionSet(ctx context.Context, job *queue.Job, master hls.MasterPlaylist) error {
	source := strings.TrimSpace(job.NormalizedPath)
	if source == "" {
		source = job.SourcePath
	}
	result, err := verifyProbe(ctx, h.cfg.FFprobeBinary(), source)
	if err != nil {
		return services.Wrap(services.ErrVerification, "verify", "probe source",
			fmt.Sprintf("could not re-probe %s to derive the expected renditions", source), err)
	}
	profile, err := result.Profile()
	if err != nil {
		return services.Wrap(services.ErrVerification, "verify", "probe source",
			"source profile unreadable", err)
	}

	expected := ladder.Eligible(profile.Width, profile.Height)
	present := make(map[string]bool, len(master.Variants))
	for _, variant := range master.Variants {
		present[strings.TrimSuffix(path.Base(variant.URI), ".m3u8")] = true
	}

	for _, rendition := range expected {
		if !present[rendition.Name] {
			return services.Wrap(services.ErrVerification, "verify", "check renditions",
				fmt.Sprintf("master playlist is missing the %s rendition", rendition.Name), nil)
		}
	}
	if len(master.Variants) != len(expected) {
		return services.Wrap(services.ErrVerification, "verify", "check renditions",
			fmt.Sprintf("master playlist references %d variants, expected %d", len(master.Variants), len(expected)), nil)
	}
	return nil
}

// HealthCheck always reports ready; verification needs only the filesystem.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("verify")
}
