package workflow_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stage"
	"hlsforge/internal/testsupport"
	"hlsforge/internal/workflow"
)

type stubHandler struct {
	name     string
	execute  func(ctx context.Context, job *queue.Job) error
	executed atomic.Int64
}

func (h *stubHandler) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (h *stubHandler) Execute(ctx context.Context, job *queue.Job) error {
	h.executed.Add(1)
	if h.execute != nil {
		return h.execute(ctx, job)
	}
	return nil
}

func (h *stubHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(h.name)
}

func passingHandlers() workflow.Handlers {
	return workflow.Handlers{
		Validate:  &stubHandler{name: "validation"},
		Normalize: &stubHandler{name: "normalize"},
		Encode:    &stubHandler{name: "encoding"},
		Verify:    &stubHandler{name: "verify"},
		Publish:   &stubHandler{name: "publish"},
		Clean:     &stubHandler{name: "cleanup"},
	}
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.IsTerminal() && job.Status != want {
			t.Fatalf("job reached %s (kind=%s message=%s), want %s", job.Status, job.ErrorKind, job.ErrorMessage, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
	return nil
}

func startManager(t *testing.T, store *queue.Store, handlers workflow.Handlers) *workflow.Manager {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	manager := workflow.NewManager(cfg, store, logging.NewNop(), handlers)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func TestManagerProcessesJobEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "happy-clip", "/tmp/happy-clip.mp4")

	startManager(t, store, passingHandlers())
	done := waitForStatus(t, store, job.ID, queue.StatusComplete)
	if done.ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", done.ErrorMessage)
	}
}

func TestVerificationFailureReRunsEncoder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "flaky-clip", "/tmp/flaky-clip.mp4")

	handlers := passingHandlers()
	encoder := handlers.Encode.(*stubHandler)
	var verifyAttempts atomic.Int64
	handlers.Verify.(*stubHandler).execute = func(ctx context.Context, j *queue.Job) error {
		if verifyAttempts.Add(1) == 1 {
			return services.Wrap(services.ErrVerification, "verify", "check segments", "segment missing", nil)
		}
		return nil
	}

	startManager(t, store, handlers)
	done := waitForStatus(t, store, job.ID, queue.StatusComplete)

	if got := encoder.executed.Load(); got != 2 {
		t.Fatalf("encoder ran %d times, want 2", got)
	}
	if done.EncodeRetries != 1 {
		t.Fatalf("encode retries = %d, want 1", done.EncodeRetries)
	}
}

func TestEncodeRetryExhaustionFailsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "cursed-clip", "/tmp/cursed-clip.mp4")

	handlers := passingHandlers()
	handlers.Encode.(*stubHandler).execute = func(ctx context.Context, j *queue.Job) error {
		return services.Wrap(services.ErrEncode, "encoding", "run ffmpeg", "encoder keeps crashing", nil)
	}

	startManager(t, store, handlers)
	done := waitForStatus(t, store, job.ID, queue.StatusFailed)

	if done.ErrorKind != "encode" {
		t.Fatalf("error kind = %q, want encode", done.ErrorKind)
	}
	if done.EncodeRetries != 1 {
		t.Fatalf("encode retries = %d, want budget of 1 consumed", done.EncodeRetries)
	}
	if got := handlers.Encode.(*stubHandler).executed.Load(); got != 2 {
		t.Fatalf("encoder ran %d times, want 2", got)
	}
}

func TestValidationFailureIsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "invalid-clip", "/tmp/invalid-clip.mp4")

	handlers := passingHandlers()
	validator := handlers.Validate.(*stubHandler)
	validator.execute = func(ctx context.Context, j *queue.Job) error {
		return services.Wrap(services.ErrValidation, "validation", "check duration", "clip too short", nil)
	}

	startManager(t, store, handlers)
	done := waitForStatus(t, store, job.ID, queue.StatusFailed)

	if done.ErrorKind != "validation" {
		t.Fatalf("error kind = %q, want validation", done.ErrorKind)
	}
	if got := validator.executed.Load(); got != 1 {
		t.Fatalf("validator ran %d times, want no retries", got)
	}
}

func TestCleanupFailureStillCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "sticky-clip", "/tmp/sticky-clip.mp4")

	handlers := passingHandlers()
	handlers.Clean.(*stubHandler).execute = func(ctx context.Context, j *queue.Job) error {
		return services.Wrap(services.ErrCleanup, "cleanup", "remove source", "permission denied", nil)
	}

	startManager(t, store, handlers)
	waitForStatus(t, store, job.ID, queue.StatusComplete)
}

func TestPanicFailsJobWithoutKillingWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewJob(t, store, "panicky-clip", "/tmp/panicky-clip.mp4")

	handlers := passingHandlers()
	handlers.Encode.(*stubHandler).execute = func(ctx context.Context, j *queue.Job) error {
		if j.VideoID == "panicky-clip" {
			panic("index out of range")
		}
		return nil
	}

	startManager(t, store, handlers)
	failed := waitForStatus(t, store, first.ID, queue.StatusFailed)
	if failed.ErrorKind != "panic" {
		t.Fatalf("error kind = %q, want panic", failed.ErrorKind)
	}

	second, err := store.NewJob(context.Background(), "calm-clip", "/tmp/calm-clip.mp4")
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	waitForStatus(t, store, second.ID, queue.StatusComplete)
}

func TestStartRequiresAllHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, store, logging.NewNop(), workflow.Handlers{})
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing handlers")
	}
}

func TestStartRequeuesAbandonedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "orphan-clip", "/tmp/orphan-clip.mp4")
	job.Status = queue.StatusEncoding
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	startManager(t, store, passingHandlers())
	waitForStatus(t, store, job.ID, queue.StatusComplete)
}
