package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hlsforge/internal/logging"
	"hlsforge/internal/media/probe"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
	"hlsforge/internal/testsupport"
)

func stubVerifyProbe(t *testing.T, width, height int) {
	t.Helper()
	original := verifyProbe
	verifyProbe = func(ctx context.Context, binary, path string) (probe.Result, error) {
		payload := fmt.Sprintf(`{"streams":[{"index":0,"codec_name":"h264","codec_type":"video","width":%d,"height":%d,"r_frame_rate":"30/1"},{"index":1,"codec_type":"audio","channels":2}],"format":{"duration":"15.0"}}`,
			width, height)
		return probe.Parse([]byte(payload))
	}
	t.Cleanup(func() { verifyProbe = original })
}

// writeTree fabricates a verifiable output tree with the given renditions
// and per-rendition segment durations.
func writeTree(t *testing.T, dir string, renditions []string, segmentDurations []float64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "segments"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var master strings.Builder
	master.WriteString("#EXTM3U\n")
	for _, name := range renditions {
		master.WriteString("#EXT-X-STREAM-INF:BANDWIDTH=1000000\n")
		master.WriteString(name + ".m3u8\n")

		var media strings.Builder
		media.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:7\n#EXT-X-PLAYLIST-TYPE:VOD\n")
		for i, duration := range segmentDurations {
			segment := fmt.Sprintf("segments/%s_%03d.ts", name, i)
			media.WriteString(fmt.Sprintf("#EXTINF:%f,\n%s\n", duration, segment))
			testsupport.WriteFile(t, filepath.Join(dir, segment), 188)
		}
		media.WriteString("#EXT-X-ENDLIST\n")
		if err := os.WriteFile(filepath.Join(dir, name+".m3u8"), []byte(media.String()), 0o644); err != nil {
			t.Fatalf("write media playlist: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "master.m3u8"), []byte(master.String()), 0o644); err != nil {
		t.Fatalf("write master playlist: %v", err)
	}
}

func newVerifyJob(t *testing.T, store *queue.Store, videoID, outputDir string) *queue.Job {
	t.Helper()
	job := testsupport.NewJob(t, store, videoID, "/tmp/"+videoID+".mp4")
	job.OutputDir = outputDir
	return job
}

func TestExecuteAcceptsCompleteTree(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	stubVerifyProbe(t, 640, 360)
	outputDir := cfg.JobOutputDir("good-clip")
	writeTree(t, outputDir, []string{"240p", "360p"}, []float64{6.0, 6.0, 3.0})
	job := newVerifyJob(t, store, "good-clip", outputDir)

	handler := New(cfg, store, logging.NewNop())
	if err := handler.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if math.Abs(job.DurationSeconds-15.0) > 0.0001 {
		t.Fatalf("duration = %f, want 15.0", job.DurationSeconds)
	}
}

func TestExecuteRejectsMissingSegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	stubVerifyProbe(t, 426, 240)
	outputDir := cfg.JobOutputDir("torn-clip")
	writeTree(t, outputDir, []string{"240p"}, []float64{6.0, 6.0})
	if err := os.Remove(filepath.Join(outputDir, "segments", "240p_001.ts")); err != nil {
		t.Fatalf("remove segment: %v", err)
	}
	job := newVerifyJob(t, store, "torn-clip", outputDir)

	handler := New(cfg, store, logging.NewNop())
	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrVerification) {
		t.Fatalf("err = %v, want verification failure", err)
	}
	if !services.Retryable(err) {
		t.Fatal("verification failures should be retryable")
	}
	if _, statErr := os.Stat(outputDir); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("rejected tree should be discarded so the encoder retry starts clean")
	}
}

func TestExecuteRejectsEmptySegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	stubVerifyProbe(t, 426, 240)
	outputDir := cfg.JobOutputDir("hollow-clip")
	writeTree(t, outputDir, []string{"240p"}, []float64{6.0})
	if err := os.Truncate(filepath.Join(outputDir, "segments", "240p_000.ts"), 0); err != nil {
		t.Fatalf("truncate segment: %v", err)
	}
	job := newVerifyJob(t, store, "hollow-clip", outputDir)

	handler := New(cfg, store, logging.NewNop())
	if err := handler.Execute(context.Background(), job); !errors.Is(err, services.ErrVerification) {
		t.Fatalf("err = %v, want verification failure", err)
	}
}

func TestExecuteRejectsMasterMissingEligibleRendition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	// A 640x360 source must yield both 240p and 360p; the tree only has 240p.
	stubVerifyProbe(t, 640, 360)
	outputDir := cfg.JobOutputDir("shrunk-clip")
	writeTree(t, outputDir, []string{"240p"}, []float64{6.0, 6.0})
	job := newVerifyJob(t, store, "shrunk-clip", outputDir)

	handler := New(cfg, store, logging.NewNop())
	err := handler.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrVerification) {
		t.Fatalf("err = %v, want verification failure", err)
	}
	if !strings.Contains(err.Error(), "360p") {
		t.Fatalf("error should name the missing rendition, got %v", err)
	}
	if _, statErr := os.Stat(outputDir); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("rejected tree should be discarded so the encoder retry starts clean")
	}
}

func TestExecuteRejectsMasterWithExtraRendition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	// A 426x240 source is only eligible for 240p; an upscaled 360p must fail.
	stubVerifyProbe(t, 426, 240)
	outputDir := cfg.JobOutputDir("bloated-clip")
	writeTree(t, outputDir, []string{"240p", "360p"}, []float64{6.0})
	job := newVerifyJob(t, store, "bloated-clip", outputDir)

	handler := New(cfg, store, logging.NewNop())
	if err := handler.Execute(context.Background(), job); !errors.Is(err, services.ErrVerification) {
		t.Fatalf("err = %v, want verification failure", err)
	}
}

func TestExecuteRejectsMissingMaster(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	outputDir := cfg.JobOutputDir("headless-clip")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	job := newVerifyJob(t, store, "headless-clip", outputDir)

	handler := New(cfg, store, logging.NewNop())
	if err := handler.Execute(context.Background(), job); !errors.Is(err, services.ErrVerification) {
		t.Fatalf("err = %v, want verification failure", err)
	}
}

func TestPrepareRequiresOutputDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := newVerifyJob(t, store, "bare-clip", "")

	handler := New(cfg, store, logging.NewNop())
	if err := handler.Prepare(context.Background(), job); !errors.Is(err, services.ErrVerification) {
		t.Fatalf("err = %v, want verification failure", err)
	}
}
