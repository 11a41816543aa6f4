// Package cleanup removes the source file and the per-job work directory
// once a job has published. The output tree is never touched here; it
// belongs to the object store and local inspection.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"hlsforge/internal/config"
	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
)

// Handler implements the cleaning stage.
type Handler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// New constructs the cleaning handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Handler {
	return &Handler{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "cleanup")}
}

// SetLogger installs the stage-scoped logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Prepare is a no-op; cleanup has nothing to stage.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	return nil
}

// Execute deletes the source file and the job's work directory. Both
// removals tolerate already-missing paths so a re-run after a crash is
// harmless.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Cleaning", "Removing intermediate files", 10)

	if source := strings.TrimSpace(job.SourcePath); source != "" {
		if err := os.Remove(source); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrCleanup, "cleanup", "remove source",
				fmt.Sprintf("could not remove %s", source), err)
		}
	}

	workDir := h.cfg.JobWorkDir(job.VideoID)
	if err := os.RemoveAll(workDir); err != nil {
		return services.Wrap(services.ErrCleanup, "cleanup", "remove work dir",
			fmt.Sprintf("could not remove %s", workDir), err)
	}
	job.NormalizedPath = ""

	if free, total, err := diskUsage(h.cfg.Paths.WorkDir); err == nil {
		h.logger.Info("intermediates removed",
			logging.String(logging.FieldVideoID, job.VideoID),
			logging.Int64("free_bytes", free),
			logging.Int64("total_bytes", total),
		)
	} else {
		h.logger.Info("intermediates removed", logging.String(logging.FieldVideoID, job.VideoID))
	}

	job.SetProgress("Cleaning", "Cleanup complete", 100)
	return nil
}

// HealthCheck reports whether the work directory is reachable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if _, err := os.Stat(h.cfg.Paths.WorkDir); err != nil {
		return stage.Unhealthy("cleanup", fmt.Sprintf("work dir unavailable: %v", err))
	}
	return stage.Healthy("cleanup")
}

func diskUsage(path string) (free, total int64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	blockSize := int64(stat.Bsize)
	return int64(stat.Bavail) * blockSize, int64(stat.Blocks) * blockSize, nil
}
