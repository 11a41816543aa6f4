package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"hlsforge/internal/services"
)

func TestConsoleHandlerFormatsRecord(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("encode finished",
		String(FieldComponent, "encoder"),
		String(FieldVideoID, "clip_a"),
		Int("variants", 4),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO encoder: encode finished") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "video_id=clip_a") {
		t.Fatalf("missing video id: %q", line)
	}
	if !strings.Contains(line, "variants=4") {
		t.Fatalf("missing variants attr: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Warn("upload retry", String("reason", "timeout while waiting"))

	if !strings.Contains(buf.String(), `reason="timeout while waiting"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" ERROR ": slog.LevelError,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithStage(ctx, "publishing")
	WithContext(ctx, logger).Info("stage started")

	line := buf.String()
	if !strings.Contains(line, "job_id=7") || !strings.Contains(line, "stage=publishing") {
		t.Fatalf("missing context fields: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
