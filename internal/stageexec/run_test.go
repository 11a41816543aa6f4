package stageexec_test

import (
	"context"
	"errors"
	"testing"

	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/stageexec"
	"hlsforge/internal/testsupport"
)

type scriptedHandler struct {
	prepareErr error
	executeErr error
	executed   bool
}

func (h *scriptedHandler) Prepare(ctx context.Context, job *queue.Job) error {
	return h.prepareErr
}

func (h *scriptedHandler) Execute(ctx context.Context, job *queue.Job) error {
	h.executed = true
	return h.executeErr
}

func TestRunAdvancesStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "clip-one", "/tmp/clip-one.mp4")

	handler := &scriptedHandler{}
	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    handler,
		StageName:  "validation",
		Processing: queue.StatusValidating,
		Done:       queue.StatusNormalizing,
		Job:        job,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !handler.executed {
		t.Fatal("handler did not execute")
	}
	if job.Status != queue.StatusNormalizing {
		t.Fatalf("status = %s, want %s", job.Status, queue.StatusNormalizing)
	}

	persisted, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status != queue.StatusNormalizing {
		t.Fatalf("persisted status = %s", persisted.Status)
	}
}

func TestRunReturnsExecuteError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "clip-two", "/tmp/clip-two.mp4")

	wantErr := services.Wrap(services.ErrEncode, "encoding", "run ffmpeg", "encoder exited", errors.New("exit status 1"))
	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    &scriptedHandler{executeErr: wantErr},
		StageName:  "encoding",
		Processing: queue.StatusEncoding,
		Done:       queue.StatusVerifying,
		Job:        job,
	})
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("Run err = %v, want encode failure", err)
	}

	// The failure decision belongs to the workflow; the job stays in the
	// processing status until the caller resolves retry or failure.
	persisted, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status != queue.StatusEncoding {
		t.Fatalf("persisted status = %s, want %s", persisted.Status, queue.StatusEncoding)
	}
}

func TestRunRequiresHandler(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "clip-three", "/tmp/clip-three.mp4")

	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:    logging.NewNop(),
		Store:     store,
		StageName: "validation",
		Job:       job,
	})
	if err == nil {
		t.Fatal("expected error for missing handler")
	}
}
