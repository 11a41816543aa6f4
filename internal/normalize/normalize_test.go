package normalize

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"hlsforge/internal/logging"
	"hlsforge/internal/services"
	"hlsforge/internal/services/ffmpeg"
	"hlsforge/internal/testsupport"
)

type fakeFFmpeg struct {
	args       []string
	outputSize int64
	err        error
	lines      []string
}

func (f *fakeFFmpeg) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	f.args = args
	for _, line := range f.lines {
		if onLine != nil {
			onLine(line)
		}
	}
	if f.err != nil {
		return f.err
	}
	target := args[len(args)-1]
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()
	if f.outputSize > 0 {
		if _, err := file.Write(make([]byte, f.outputSize)); err != nil {
			return err
		}
	}
	return nil
}

func TestExecuteNormalizesSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := testsupport.WriteFile(t, cfg.Paths.IncomingDir+"/clip.mp4", 4096)
	job := testsupport.NewJob(t, store, "clip", source)

	fake := &fakeFFmpeg{outputSize: 2048}
	handler, err := New(cfg, store, logging.NewNop(), ffmpeg.WithExecutor(fake))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if job.NormalizedPath == "" {
		t.Fatal("normalized path not recorded")
	}
	if _, err := os.Stat(job.NormalizedPath); err != nil {
		t.Fatalf("normalized file missing: %v", err)
	}

	joined := strings.Join(fake.args, " ")
	for _, fragment := range []string{"-c:v copy", "-c:a aac", "-ar 48000", "-movflags +faststart"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("ffmpeg args missing %q: %s", fragment, joined)
		}
	}
}

func TestExecuteWrapsFFmpegFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := testsupport.WriteFile(t, cfg.Paths.IncomingDir+"/bad.mp4", 4096)
	job := testsupport.NewJob(t, store, "bad", source)

	fake := &fakeFFmpeg{err: errors.New("exit status 1"), lines: []string{"bad.mp4: Invalid data found"}}
	handler, err := New(cfg, store, logging.NewNop(), ffmpeg.WithExecutor(fake))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	execErr := handler.Execute(context.Background(), job)
	if !errors.Is(execErr, services.ErrNormalize) {
		t.Fatalf("err = %v, want normalize failure", execErr)
	}
	if !services.Retryable(execErr) {
		t.Fatal("normalize failures should be retryable")
	}
	details := services.Details(execErr)
	if !strings.Contains(details.Message, "Invalid data found") {
		t.Fatalf("details should carry the last ffmpeg line: %q", details.Message)
	}
}

func TestExecuteRejectsEmptyOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := testsupport.WriteFile(t, cfg.Paths.IncomingDir+"/hollow.mp4", 4096)
	job := testsupport.NewJob(t, store, "hollow", source)

	handler, err := New(cfg, store, logging.NewNop(), ffmpeg.WithExecutor(&fakeFFmpeg{outputSize: 0}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(context.Background(), job); !errors.Is(err, services.ErrNormalize) {
		t.Fatalf("err = %v, want normalize failure", err)
	}
}
