// Package publish uploads the verified output tree to the object store and
// reports the completed video to the metadata service. The master playlist
// is uploaded last so a manifest never references segments that are not yet
// in place.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hlsforge/internal/config"
	"hlsforge/internal/hls"
	"hlsforge/internal/logging"
	"hlsforge/internal/metadata"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
)

const masterPlaylistName = "master.m3u8"

// Handler implements the publishing stage.
type Handler struct {
	cfg     *config.Config
	store   *queue.Store
	logger  *slog.Logger
	objects ObjectStore
	meta    metadata.Service
}

// New constructs the publishing handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, objects ObjectStore, meta metadata.Service) *Handler {
	if meta == nil {
		meta = metadata.NewService(cfg)
	}
	return &Handler{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "publish"),
		objects: objects,
		meta:    meta,
	}
}

// SetLogger installs the stage-scoped logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Prepare confirms the verified tree is still on disk.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	if h.objects == nil {
		return services.Wrap(services.ErrConfiguration, "publish", "check store", "object store not configured", nil)
	}
	masterPath := filepath.Join(job.OutputDir, masterPlaylistName)
	if _, err := os.Stat(masterPath); err != nil {
		return services.Wrap(services.ErrPublish, "publish", "check tree",
			fmt.Sprintf("verified tree missing master playlist at %s", masterPath), err)
	}
	return nil
}

// Execute uploads every file under the output tree and then calls the
// metadata service. Re-running after a partial upload overwrites the same
// keys, so the operation is idempotent.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	files, err := h.collectFiles(job.OutputDir)
	if err != nil {
		return services.Wrap(services.ErrPublish, "publish", "walk tree", "could not enumerate output tree", err)
	}
	if len(files) == 0 {
		return services.Wrap(services.ErrPublish, "publish", "walk tree", "output tree is empty", nil)
	}

	for i, rel := range files {
		if err := h.uploadFile(ctx, job, rel); err != nil {
			return err
		}
		percent := float64(i+1) / float64(len(files)) * 90
		job.SetProgress("Publishing", fmt.Sprintf("Uploaded %d of %d files", i+1, len(files)), percent)
		if progressErr := h.store.UpdateProgress(ctx, job); progressErr != nil {
			h.logger.Warn("failed to persist publish progress", logging.Error(progressErr))
		}
	}

	save, err := h.buildSave(job)
	if err != nil {
		return err
	}
	if err := h.meta.SaveCompleted(ctx, save); err != nil {
		return err
	}

	job.SetProgress("Publishing", "Published", 100)
	h.logger.Info("tree published",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.Int("files", len(files)),
		logging.String("master_key", h.objectKey(job.VideoID, masterPlaylistName)),
	)
	return nil
}

// HealthCheck reports whether the object store is wired.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.objects == nil {
		return stage.Unhealthy("publish", "object store not configured")
	}
	return stage.Healthy("publish")
}

// collectFiles returns output-tree-relative paths ordered so the master
// playlist is last.
func (h *Handler) collectFiles(outputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(outputDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i] == masterPlaylistName {
			return false
		}
		if files[j] == masterPlaylistName {
			return true
		}
		return files[i] < files[j]
	})
	return files, nil
}

func (h *Handler) uploadFile(ctx context.Context, job *queue.Job, rel string) error {
	localPath := filepath.Join(job.OutputDir, filepath.FromSlash(rel))
	file, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrPublish, "publish", "open file",
			fmt.Sprintf("could not open %s", rel), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return services.Wrap(services.ErrPublish, "publish", "stat file",
			fmt.Sprintf("could not stat %s", rel), err)
	}

	uploadCtx := ctx
	if timeout := time.Duration(h.cfg.Storage.RequestTimeout) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	key := h.objectKey(job.VideoID, rel)
	if err := h.objects.Put(uploadCtx, key, ContentType(rel), file, info.Size()); err != nil {
		return services.Wrap(services.ErrPublish, "publish", "upload file",
			fmt.Sprintf("upload of %s failed", key), err)
	}
	return nil
}

// buildSave assembles the payload the metadata store keys on: the stable
// root path plus one asset per rendition playlist ordered lowest to highest
// bandwidth, with the master as the final asset.
func (h *Handler) buildSave(job *queue.Job) (metadata.Save, error) {
	master, err := hls.ParseMasterFile(filepath.Join(job.OutputDir, masterPlaylistName))
	if err != nil {
		return metadata.Save{}, services.Wrap(services.ErrPublish, "publish", "read master",
			"master playlist unreadable after upload", err)
	}

	variants := append([]hls.Variant(nil), master.Variants...)
	sort.Slice(variants, func(i, j int) bool { return variants[i].Bandwidth < variants[j].Bandwidth })

	assets := make([]metadata.Asset, 0, len(variants)+1)
	for i, variant := range variants {
		assets = append(assets, metadata.Asset{
			Type:  metadata.AssetTypeRendition,
			URL:   h.objectKey(job.VideoID, variant.URI),
			Index: i,
		})
	}
	assets = append(assets, metadata.Asset{
		Type:  metadata.AssetTypeMaster,
		URL:   h.objectKey(job.VideoID, masterPlaylistName),
		Index: len(variants),
	})

	return metadata.Save{
		VideoID:         job.VideoID,
		RootPath:        h.objectKey(job.VideoID, ""),
		PlaybackURL:     h.objectKey(job.VideoID, masterPlaylistName),
		DurationSeconds: job.DurationSeconds,
		Assets:          assets,
	}, nil
}

func (h *Handler) objectKey(videoID, rel string) string {
	prefix := strings.Trim(strings.TrimSpace(h.cfg.Storage.KeyPrefix), "/")
	if prefix == "" {
		return path.Join(videoID, rel)
	}
	return path.Join(prefix, videoID, rel)
}

// ContentType maps output-tree files to the MIME types players expect.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
