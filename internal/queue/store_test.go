package queue_test

import (
	"context"
	"testing"
	"time"

	"hlsforge/internal/queue"
	"hlsforge/internal/testsupport"
)

func TestNewJobDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "clip_a", "/uploads/clip_a.mp4")
	if job.Status != queue.StatusQueued {
		t.Fatalf("status = %s, want %s", job.Status, queue.StatusQueued)
	}
	if job.VideoID != "clip_a" {
		t.Fatalf("video id = %q", job.VideoID)
	}
	if job.NormalizeRetries != 0 || job.EncodeRetries != 0 || job.PublishRetries != 0 {
		t.Fatalf("expected zero retry counters, got %+v", job)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestClaimNextIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	testsupport.NewJob(t, store, "clip_b", "/uploads/b.mp4")

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job %d, got %+v", first.ID, claimed)
	}
	if claimed.Status != queue.StatusValidating {
		t.Fatalf("claimed status = %s, want validating", claimed.Status)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("expected heartbeat on claim")
	}

	second, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext second: %v", err)
	}
	if second == nil || second.VideoID != "clip_b" {
		t.Fatalf("expected clip_b, got %+v", second)
	}

	third, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext empty: %v", err)
	}
	if third != nil {
		t.Fatalf("expected empty queue, got %+v", third)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	job.Status = queue.StatusEncoding
	job.NormalizedPath = "/work/clip_a/normalized.mp4"
	job.OutputDir = "/output/clip_a"
	job.DurationSeconds = 30.5
	job.RecordRetry(queue.StatusEncoding)
	job.SetProgress("Encoding", "ladder encode", 42)

	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusEncoding {
		t.Fatalf("status = %s", got.Status)
	}
	if got.NormalizedPath != job.NormalizedPath || got.OutputDir != job.OutputDir {
		t.Fatalf("paths not persisted: %+v", got)
	}
	if got.EncodeRetries != 1 {
		t.Fatalf("encode retries = %d, want 1", got.EncodeRetries)
	}
	if got.DurationSeconds != 30.5 {
		t.Fatalf("duration = %f", got.DurationSeconds)
	}
	if got.ProgressStage != "Encoding" || got.ProgressPercent != 42 {
		t.Fatalf("progress not persisted: %+v", got)
	}
}

func TestGetByVideoID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	want := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	got, err := store.GetByVideoID(ctx, "clip_a")
	if err != nil {
		t.Fatalf("GetByVideoID: %v", err)
	}
	if got == nil || got.ID != want.ID {
		t.Fatalf("expected job %d, got %+v", want.ID, got)
	}

	missing, err := store.GetByVideoID(ctx, "absent")
	if err != nil {
		t.Fatalf("GetByVideoID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing video id, got %+v", missing)
	}
}

func TestFindActiveBySourceIgnoresTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")

	active, err := store.FindActiveBySource(ctx, "/uploads/a.mp4")
	if err != nil {
		t.Fatalf("FindActiveBySource: %v", err)
	}
	if active == nil || active.ID != job.ID {
		t.Fatalf("expected active job, got %+v", active)
	}

	job.SetFailed("encode", "exit 1")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err = store.FindActiveBySource(ctx, "/uploads/a.mp4")
	if err != nil {
		t.Fatalf("FindActiveBySource after fail: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active job after terminal status, got %+v", active)
	}
}

func TestRetryFailedResetsBudgets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	job.RecordRetry(queue.StatusEncoding)
	job.RecordRetry(queue.StatusNormalizing)
	job.SetFailed("encode", "exit 1")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	affected, err := store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.EncodeRetries != 0 || got.NormalizeRetries != 0 {
		t.Fatalf("retry counters not reset: %+v", got)
	}
	if got.ErrorMessage != "" || got.ErrorKind != "" {
		t.Fatalf("error detail not cleared: %+v", got)
	}
}

func TestResetStuckProcessingPreservesRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	job.Status = queue.StatusEncoding
	job.RecordRetry(queue.StatusEncoding)
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	affected, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.EncodeRetries != 1 {
		t.Fatalf("encode retries = %d, want preserved 1", got.EncodeRetries)
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil || claimed.ID != job.ID {
		t.Fatalf("ClaimNext: %v %+v", err, claimed)
	}

	// Cutoff in the future makes the just-written heartbeat stale.
	affected, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared")
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, "clip_a", "/uploads/a.mp4")
	b := testsupport.NewJob(t, store, "clip_b", "/uploads/b.mp4")
	b.Status = queue.StatusComplete
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	c := testsupport.NewJob(t, store, "clip_c", "/uploads/c.mp4")
	c.SetFailed("validation", "duration 3.0s is at or below the 5s floor")
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusQueued] != 1 || stats[queue.StatusComplete] != 1 || stats[queue.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Queued != 1 || health.Complete != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestDuplicateVideoIDRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.NewJob(ctx, "clip_a", "/uploads/a.mp4"); err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if _, err := store.NewJob(ctx, "clip_a", "/uploads/other.mp4"); err == nil {
		t.Fatal("expected unique constraint error for duplicate video id")
	}
}
