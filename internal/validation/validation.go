// Package validation gate-keeps newly queued jobs: the source must exist,
// carry a video stream, run longer than the minimum duration, and be large
// enough to feed at least the lowest ladder rendition.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"hlsforge/internal/config"
	"hlsforge/internal/logging"
	"hlsforge/internal/media/ladder"
	"hlsforge/internal/media/probe"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
)

const minDurationSeconds = 5.0

var validateProbe = probe.Inspect

// Handler implements the validation stage.
type Handler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// New constructs the validation handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Handler {
	return &Handler{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "validation")}
}

// SetLogger installs the stage-scoped logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Prepare verifies the source file is present before the probe runs.
func (h *Handler) Prepare(ctx context.Context, job *queue.Job) error {
	source := strings.TrimSpace(job.SourcePath)
	if source == "" {
		return services.Wrap(services.ErrValidation, "validation", "check source", "job has no source path", nil)
	}
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrValidation, "validation", "check source",
				fmt.Sprintf("source file %s does not exist", source), err)
		}
		return services.Wrap(services.ErrValidation, "validation", "check source",
			fmt.Sprintf("source file %s is not readable", source), err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "validation", "check source",
			fmt.Sprintf("source path %s is a directory", source), nil)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "validation", "check source",
			fmt.Sprintf("source file %s is empty", source), nil)
	}
	return nil
}

// Execute probes the source and applies the admission rules. On success the
// job carries the probed duration and its final output directory.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	job.SetProgress("Validating", "Probing source file", 10)

	result, err := validateProbe(ctx, h.cfg.FFprobeBinary(), job.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "validation", "probe source",
			"ffprobe could not read the source file", err)
	}
	profile, err := result.Profile()
	if err != nil {
		return services.Wrap(services.ErrValidation, "validation", "inspect streams", err.Error(), err)
	}

	if profile.DurationSeconds <= minDurationSeconds {
		return services.Wrap(services.ErrValidation, "validation", "check duration",
			fmt.Sprintf("duration %.2fs is at or below the %.0fs minimum", profile.DurationSeconds, minDurationSeconds), nil)
	}

	lowest := ladder.Lowest()
	if profile.Width < lowest.Width || profile.Height < lowest.Height {
		return services.Wrap(services.ErrValidation, "validation", "check resolution",
			fmt.Sprintf("resolution %dx%d is below the minimum %s target %s",
				profile.Width, profile.Height, lowest.Name, lowest.Resolution()), nil)
	}

	renditions := ladder.Eligible(profile.Width, profile.Height)
	job.DurationSeconds = profile.DurationSeconds
	job.OutputDir = h.cfg.JobOutputDir(job.VideoID)
	job.SetProgress("Validating", fmt.Sprintf("Source admitted for %s", strings.Join(ladder.Names(renditions), ", ")), 100)

	h.logger.Info("source validated",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("resolution", fmt.Sprintf("%dx%d", profile.Width, profile.Height)),
		logging.Float64("duration_seconds", profile.DurationSeconds),
		logging.String("video_codec", profile.VideoCodec),
		logging.Bool("has_audio", profile.HasAudio),
		logging.String("renditions", strings.Join(ladder.Names(renditions), ",")),
	)
	return nil
}

// HealthCheck reports whether ffprobe is resolvable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	binary := h.cfg.FFprobeBinary()
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy("validation", fmt.Sprintf("ffprobe not found at %q", binary))
	}
	return stage.Healthy("validation")
}
