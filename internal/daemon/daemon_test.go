package daemon

import (
	"context"
	"testing"

	"hlsforge/internal/intake"
	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/stage"
	"hlsforge/internal/testsupport"
	"hlsforge/internal/workflow"
)

type idleHandler struct{ name string }

func (h idleHandler) Prepare(ctx context.Context, job *queue.Job) error { return nil }
func (h idleHandler) Execute(ctx context.Context, job *queue.Job) error { return nil }
func (h idleHandler) HealthCheck(ctx context.Context) stage.Health      { return stage.Healthy(h.name) }

func idleHandlers() workflow.Handlers {
	return workflow.Handlers{
		Validate:  idleHandler{"validation"},
		Normalize: idleHandler{"normalize"},
		Encode:    idleHandler{"encoding"},
		Verify:    idleHandler{"verify"},
		Publish:   idleHandler{"publish"},
		Clean:     idleHandler{"cleanup"},
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	manager := workflow.NewManager(cfg, store, logger, idleHandlers())
	watcher := intake.NewWatcher(cfg, store, logger)

	d, err := New(cfg, store, logger, manager, watcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStartStop(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if len(status.Stages) != 6 {
		t.Fatalf("stage health entries = %d, want 6", len(status.Stages))
	}
	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("daemon should report stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	first := newTestDaemon(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	// Same work dir means same lock file.
	second, err := New(first.cfg, first.store, first.logger, workflow.NewManager(first.cfg, first.store, first.logger, idleHandlers()), nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance should fail to acquire the lock")
	}
}
