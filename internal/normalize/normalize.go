// Package normalize rewrites the admitted source into the container the
// ladder encoder expects: video stream copied untouched, audio re-encoded to
// 48 kHz AAC, moov atom moved up front.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"hlsforge/internal/config"
	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/services/ffmpeg"
	"hlsforge/internal/stage"
)

const normalizedFileName = "normalized.mp4"

// Handler implements the normalization stage.
type Handler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	client *ffmpeg.Client
}

// New constructs the normalization handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ffmpeg.Option) (*Handler, error) {
	client, err := ffmpeg.New(cfg.FFmpegBinary(), opts...)
	if err != nil {
		return nil, err
	}
	return &Handler{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "normalize"),
		client: client,
	}, nil
}

// SetLogger installs the stage-scoped logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Prepare creates the per-job work directory.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	workDir := h.cfg.JobWorkDir(job.VideoID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrNormalize, "normalize", "create work dir",
			fmt.Sprintf("could not create %s", workDir), err)
	}
	return nil
}

// Execute runs the audio-only re-encode. The video stream is copied, so this
// pass is fast relative to the ladder encode that follows.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	target := filepath.Join(h.cfg.JobWorkDir(job.VideoID), normalizedFileName)
	args := h.arguments(job.SourcePath, target)

	job.SetProgress("Normalizing", "Rewriting audio track", 10)
	h.logger.Info("normalizing source",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("command", h.client.Binary()+" "+strings.Join(args, " ")),
	)

	var lastLine string
	err := h.client.Run(ctx, args, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lastLine = trimmed
		}
	})
	if err != nil {
		_ = os.Remove(target)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrNormalize, "normalize", "run ffmpeg", "normalization interrupted", ctx.Err())
		}
		detail := "ffmpeg normalization failed"
		if lastLine != "" {
			detail = fmt.Sprintf("ffmpeg normalization failed: %s", lastLine)
		}
		return services.Wrap(services.ErrNormalize, "normalize", "run ffmpeg", detail, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNormalize, "normalize", "verify output",
				"ffmpeg exited cleanly but produced no normalized file", err)
		}
		return services.Wrap(services.ErrNormalize, "normalize", "verify output", "normalized file unreadable", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(target)
		return services.Wrap(services.ErrNormalize, "normalize", "verify output", "normalized file is empty", nil)
	}

	job.NormalizedPath = target
	job.SetProgress("Normalizing", "Audio track normalized", 100)
	return nil
}

// HealthCheck reports whether ffmpeg is resolvable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(h.client.Binary()); err != nil {
		return stage.Unhealthy("normalize", fmt.Sprintf("ffmpeg not found at %q", h.client.Binary()))
	}
	return stage.Healthy("normalize")
}

func (h *Handler) arguments(source, target string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", source,
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", "48000",
		"-movflags", "+faststart",
		"-y",
		target,
	}
}
