package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
	"hlsforge/internal/stageexec"
)

// Retry budgets per stage. Validation failures are final; encoding and
// verification draw from one shared budget.
const (
	normalizeRetryBudget = 1
	encodeRetryBudget    = 1
	publishRetryBudget   = 1
)

type stageStep struct {
	name       string
	processing queue.Status
	done       queue.Status
	handler    stage.Handler
}

func (m *Manager) steps() []stageStep {
	return []stageStep{
		{name: "validation", processing: queue.StatusValidating, done: queue.StatusNormalizing, handler: m.handlers.Validate},
		{name: "normalize", processing: queue.StatusNormalizing, done: queue.StatusEncoding, handler: m.handlers.Normalize},
		{name: "encoding", processing: queue.StatusEncoding, done: queue.StatusVerifying, handler: m.handlers.Encode},
		{name: "verify", processing: queue.StatusVerifying, done: queue.StatusPublishing, handler: m.handlers.Verify},
		{name: "publish", processing: queue.StatusPublishing, done: queue.StatusCleaning, handler: m.handlers.Publish},
		{name: "cleanup", processing: queue.StatusCleaning, done: queue.StatusComplete, handler: m.handlers.Clean},
	}
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if id == 0 {
			if err := m.heartbeat.ReclaimStaleJobs(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale jobs failed", logging.Error(err))
			}
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
			)
			m.waitOrShutdown(ctx)
			continue
		}
		if job == nil {
			m.waitOrShutdown(ctx)
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// processJob carries one claimed job through every remaining stage. The job
// runs under its own deadline and heartbeat loop; a panic in any handler
// fails the job without taking the worker down.
func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	jobCtx := logging.WithJobID(ctx, job.ID)
	jobCtx = logging.WithVideoID(jobCtx, job.VideoID)
	if timeout := m.cfg.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, timeout)
		defer cancel()
	}

	jobLogger := logging.WithContext(jobCtx, logger)
	jobLogger.Info("job claimed",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source_file", job.SourcePath),
	)

	heartbeatCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(heartbeatCtx, &hbWG, job.ID)
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		job.SetFailed("panic", fmt.Sprintf("stage panicked: %v", r))
		if err := m.store.Update(context.WithoutCancel(ctx), job); err != nil {
			jobLogger.Error("failed to persist panic failure", logging.Error(err))
		}
		jobLogger.Error("stage panicked; job failed",
			logging.String(logging.FieldEventType, "job_panic"),
			logging.String("panic", fmt.Sprintf("%v", r)),
		)
	}()

	steps := m.steps()
	index := stepIndexFor(steps, job.Status)
	for index < len(steps) {
		step := steps[index]
		err := stageexec.Run(jobCtx, stageexec.Options{
			Logger:     jobLogger,
			Store:      m.store,
			Handler:    step.handler,
			StageName:  step.name,
			Processing: step.processing,
			Done:       step.done,
			Job:        job,
		})
		if err == nil {
			index = stepIndexFor(steps, job.Status)
			continue
		}

		next, failed := m.resolveFailure(jobCtx, jobLogger, steps, job, step, err)
		if failed {
			return
		}
		index = next
	}

	jobLogger.Info("job complete",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Float64("duration_seconds", job.DurationSeconds),
	)
}

// resolveFailure decides between retry and terminal failure. It returns the
// step index to resume at, or failed=true when the job has been failed.
func (m *Manager) resolveFailure(ctx context.Context, logger *slog.Logger, steps []stageStep, job *queue.Job, step stageStep, stageErr error) (int, bool) {
	persistCtx := context.WithoutCancel(ctx)

	// A cleanup failure never undoes a published video. Log it and complete.
	if step.processing == queue.StatusCleaning && errors.Is(stageErr, services.ErrCleanup) {
		logger.Warn("cleanup failed; intermediates left on disk",
			logging.Error(stageErr),
			logging.String(logging.FieldEventType, "cleanup_skipped"),
		)
		job.Status = queue.StatusComplete
		job.LastHeartbeat = nil
		if err := m.store.Update(persistCtx, job); err != nil {
			logger.Error("failed to persist completion after cleanup failure", logging.Error(err))
		}
		return len(steps), false
	}

	budget := retryBudgetFor(step.processing)
	if services.Retryable(stageErr) && ctx.Err() == nil && job.RetriesFor(step.processing) < budget {
		job.RecordRetry(step.processing)
		resume := retryTargetFor(steps, step)
		job.Status = steps[resume].processing
		if err := m.store.Update(persistCtx, job); err != nil {
			logger.Error("failed to persist retry", logging.Error(err))
			return 0, true
		}
		logger.Warn("stage failed; retrying",
			logging.Error(stageErr),
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String("retry_stage", steps[resume].name),
			logging.Int("attempts_used", job.RetriesFor(step.processing)),
			logging.Int("budget", budget),
		)
		return resume, false
	}

	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = stageErr.Error()
	}
	job.SetFailed(details.Kind, message)
	if err := m.store.Update(persistCtx, job); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	logger.Error("job failed",
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String("failed_stage", step.name),
	)
	return 0, true
}

func retryBudgetFor(status queue.Status) int {
	switch status {
	case queue.StatusNormalizing:
		return normalizeRetryBudget
	case queue.StatusEncoding, queue.StatusVerifying:
		return encodeRetryBudget
	case queue.StatusPublishing:
		return publishRetryBudget
	default:
		return 0
	}
}

// retryTargetFor picks the step a retry resumes at. Verification failures
// re-run the encoder because the artifact under test is the encoder's.
func retryTargetFor(steps []stageStep, failed stageStep) int {
	target := failed.processing
	if failed.processing == queue.StatusVerifying {
		target = queue.StatusEncoding
	}
	for i, step := range steps {
		if step.processing == target {
			return i
		}
	}
	return 0
}

func stepIndexFor(steps []stageStep, status queue.Status) int {
	for i, step := range steps {
		if step.processing == status {
			return i
		}
	}
	return len(steps)
}
