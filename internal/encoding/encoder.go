// Package encoding runs the ladder encode: a single ffmpeg pass that turns
// the normalized file into one HLS variant stream per eligible rendition
// plus the master playlist.
package encoding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"hlsforge/internal/config"
	"hlsforge/internal/logging"
	"hlsforge/internal/media/ladder"
	"hlsforge/internal/media/probe"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/services/ffmpeg"
	"hlsforge/internal/stage"
)

var encodeProbe = probe.Inspect

const progressPersistInterval = 2 * time.Second

// Encoder implements the ladder encoding stage.
type Encoder struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	client *ffmpeg.Client
}

// New constructs the encoder.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ffmpeg.Option) (*Encoder, error) {
	client, err := ffmpeg.New(cfg.FFmpegBinary(), opts...)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "encoding"),
		client: client,
	}, nil
}

// SetLogger installs the stage-scoped logger.
func (e *Encoder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Prepare clears any partial output tree from an earlier attempt and lays
// down the directory skeleton. Retries always start from a clean tree so the
// verifier never sees a mix of old and new segments.
func (e *Encoder) Prepare(ctx context.Context, job *queue.Job) error {
	outputDir := strings.TrimSpace(job.OutputDir)
	if outputDir == "" {
		outputDir = e.cfg.JobOutputDir(job.VideoID)
		job.OutputDir = outputDir
	}
	if err := os.RemoveAll(outputDir); err != nil {
		return services.Wrap(services.ErrEncode, "encoding", "reset output dir",
			fmt.Sprintf("could not clear %s", outputDir), err)
	}
	if err := os.MkdirAll(outputDir+"/segments", 0o755); err != nil {
		return services.Wrap(services.ErrEncode, "encoding", "create output dir",
			fmt.Sprintf("could not create %s", outputDir), err)
	}
	return nil
}

// Execute probes the normalized file, plans the ladder, and runs the encode.
// Any failure removes the partial output tree before returning.
func (e *Encoder) Execute(ctx context.Context, job *queue.Job) error {
	source := strings.TrimSpace(job.NormalizedPath)
	if source == "" {
		return services.Wrap(services.ErrEncode, "encoding", "resolve input",
			"job has no normalized file; normalization must run first", nil)
	}

	result, err := encodeProbe(ctx, e.cfg.FFprobeBinary(), source)
	if err != nil {
		return services.Wrap(services.ErrEncode, "encoding", "probe input",
			"ffprobe could not read the normalized file", err)
	}
	profile, err := result.Profile()
	if err != nil {
		return services.Wrap(services.ErrEncode, "encoding", "probe input", err.Error(), err)
	}

	plan, err := NewPlan(profile, source, job.OutputDir,
		e.cfg.Encoding.SegmentSeconds, e.cfg.Encoding.AudioBitrateKbps, e.cfg.Encoding.AudioChannels)
	if err != nil {
		return services.Wrap(services.ErrEncode, "encoding", "plan ladder", err.Error(), err)
	}

	names := strings.Join(ladder.Names(plan.Renditions), ",")
	e.logger.Info("launching ladder encode",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("renditions", names),
		logging.Int("keyframe_interval", plan.KeyframeInterval),
		logging.Float64("source_fps", profile.FrameRate),
	)
	job.SetProgress("Encoding", fmt.Sprintf("Encoding %s", names), 0)

	onLine := e.progressSink(ctx, job, profile.DurationSeconds)
	if err := e.client.Run(ctx, plan.Arguments(), onLine); err != nil {
		e.discardPartialOutput(job)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrEncode, "encoding", "run ffmpeg", "encode interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrEncode, "encoding", "run ffmpeg", "ladder encode failed", err)
	}

	if _, err := os.Stat(plan.MasterPlaylistPath()); err != nil {
		e.discardPartialOutput(job)
		return services.Wrap(services.ErrEncode, "encoding", "verify output",
			"ffmpeg exited cleanly but wrote no master playlist", err)
	}

	job.SetProgress("Encoding", "Ladder encode complete", 100)
	return nil
}

// HealthCheck reports whether ffmpeg is resolvable.
func (e *Encoder) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.client.Binary()); err != nil {
		return stage.Unhealthy("encoding", fmt.Sprintf("ffmpeg not found at %q", e.client.Binary()))
	}
	return stage.Healthy("encoding")
}

// DiscardOutput removes the job's output tree. The verifier calls this when
// a verification failure sends the job back through the encoder.
func DiscardOutput(job *queue.Job) error {
	outputDir := strings.TrimSpace(job.OutputDir)
	if outputDir == "" {
		return nil
	}
	return os.RemoveAll(outputDir)
}

func (e *Encoder) discardPartialOutput(job *queue.Job) {
	if err := DiscardOutput(job); err != nil {
		e.logger.Warn("failed to remove partial output tree",
			logging.String(logging.FieldVideoID, job.VideoID),
			logging.Error(err))
	}
}

// progressSink converts ffmpeg -progress lines into throttled queue updates.
func (e *Encoder) progressSink(ctx context.Context, job *queue.Job, durationSeconds float64) func(string) {
	var lastPersisted time.Time
	return func(line string) {
		update, ok := ffmpeg.ParseProgress(line)
		if !ok || update.OutTimeSeconds <= 0 || durationSeconds <= 0 {
			return
		}
		percent := update.OutTimeSeconds / durationSeconds * 100
		if percent > 100 {
			percent = 100
		}
		now := time.Now()
		if !lastPersisted.IsZero() && now.Sub(lastPersisted) < progressPersistInterval {
			return
		}
		lastPersisted = now

		copy := *job
		copy.SetProgress("Encoding", fmt.Sprintf("Encoded %.0f of %.0f seconds", update.OutTimeSeconds, durationSeconds), percent)
		if err := e.store.UpdateProgress(ctx, &copy); err != nil {
			e.logger.Warn("failed to persist encoding progress", logging.Error(err))
			return
		}
		*job = copy
	}
}
