// Package stageexec runs a single stage attempt against a queue job,
// persisting the status transitions around Prepare and Execute.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
)

// Handler is the stage contract used by the execution helper.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
}

// Options controls stage execution and queue persistence behavior.
type Options struct {
	Logger     *slog.Logger
	Store      *queue.Store
	Handler    Handler
	StageName  string
	Processing queue.Status
	Done       queue.Status
	Job        *queue.Job
}

// Run executes one stage attempt. It moves the job into the processing
// status, runs Prepare then Execute, and advances to the done status unless
// the handler already moved the job elsewhere. Failures are returned to the
// caller unpersisted so the workflow can decide between retry and failure.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil {
		return fmt.Errorf("queue store is required")
	}
	if opts.Job == nil {
		return fmt.Errorf("queue job is required")
	}

	stageCtx := logging.WithStage(ctx, opts.StageName)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(opts.Processing)),
		logging.String(logging.FieldVideoID, opts.Job.VideoID),
		logging.String("source_file", strings.TrimSpace(opts.Job.SourcePath)),
	)
	started := time.Now()

	setJobProcessingState(opts.Job, opts.Processing)
	if err := opts.Store.Update(stageCtx, opts.Job); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}

	if err := opts.Handler.Prepare(stageCtx, opts.Job); err != nil {
		logFailure(stageLogger, err)
		return err
	}
	if err := opts.Store.Update(stageCtx, opts.Job); err != nil {
		return fmt.Errorf("persist stage preparation: %w", err)
	}

	if err := opts.Handler.Execute(stageCtx, opts.Job); err != nil {
		logFailure(stageLogger, err)
		return err
	}

	if opts.Job.Status == opts.Processing || opts.Job.Status == "" {
		opts.Job.Status = opts.Done
	}
	opts.Job.LastHeartbeat = nil
	if err := opts.Store.Update(stageCtx, opts.Job); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(opts.Job.Status)),
		slog.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)

	return nil
}

func logFailure(logger *slog.Logger, stageErr error) {
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" && stageErr != nil {
		message = strings.TrimSpace(stageErr.Error())
	}
	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
}

func setJobProcessingState(job *queue.Job, processing queue.Status) {
	now := time.Now().UTC()
	job.Status = processing
	job.InitProgress(deriveStageLabel(processing), fmt.Sprintf("%s started", deriveStageLabel(processing)))
	job.LastHeartbeat = &now
}

func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
