package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hlsforge/internal/config"
	"hlsforge/internal/queue"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: configPath,
		baseDir:    base,
	}
}

func writeTestConfig(t *testing.T, path, base string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
incoming_dir = %q
work_dir = %q
output_dir = %q
log_dir = %q

[storage]
endpoint = "http://127.0.0.1:0"
bucket = "test-bucket"
access_key_id = "test"
secret_access_key = "test"
`,
		filepath.Join(base, "incoming"),
		filepath.Join(base, "work"),
		filepath.Join(base, "output"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got %q", needle, haystack)
	}
}

func TestCLIQueueAndAddCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	if _, err := env.store.NewJob(ctx, "alpha", filepath.Join(env.baseDir, "alpha.mp4")); err != nil {
		t.Fatalf("NewJob alpha: %v", err)
	}
	failed, err := env.store.NewJob(ctx, "beta", filepath.Join(env.baseDir, "beta.mp4"))
	if err != nil {
		t.Fatalf("NewJob beta: %v", err)
	}
	failed.SetFailed("encode", "encoder exited with status 1")
	if err := env.store.Update(ctx, failed); err != nil {
		t.Fatalf("update failed job: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, []string{"queue", "status"})
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "queued")
	requireContains(t, out, "failed_encoding")

	out, _, err = runCLI(t, env.configPath, []string{"queue", "list"})
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha")
	requireContains(t, out, "beta")

	out, _, err = runCLI(t, env.configPath, []string{"queue", "retry"})
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed jobs")
	updated, err := env.store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID after retry: %v", err)
	}
	if updated.Status != queue.StatusQueued {
		t.Fatalf("expected retried job queued, got %s", updated.Status)
	}

	updated.SetFailed("encode", "encoder exited with status 1")
	if err := env.store.Update(ctx, updated); err != nil {
		t.Fatalf("reset failed status: %v", err)
	}

	out, _, err = runCLI(t, env.configPath, []string{"queue", "clear", "--failed"})
	if err != nil {
		t.Fatalf("queue clear --failed: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed jobs")

	out, _, err = runCLI(t, env.configPath, []string{"queue", "clear"})
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared")

	out, _, err = runCLI(t, env.configPath, []string{"queue", "status"})
	if err != nil {
		t.Fatalf("queue status after clear: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	sourcePath := filepath.Join(env.cfg.Paths.IncomingDir, "Manual Upload.mp4")
	if err := os.WriteFile(sourcePath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, []string{"add", sourcePath})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Queued Manual Upload.mp4")
	requireContains(t, out, "manual_upload")
}

func TestCLIQueueHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := env.store.NewJob(context.Background(), "gamma", filepath.Join(env.baseDir, "gamma.mp4")); err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, []string{"queue", "health"})
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Total: 1")
	requireContains(t, out, "Queued: 1")
	requireContains(t, out, "Integrity: yes")
}

func TestCLIStatusReportsStoppedDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, []string{"status"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon running: no")
	requireContains(t, out, "Jobs: 0 total")
}

func TestCLIRejectsUnknownStatusFilter(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env.configPath, []string{"queue", "list", "--status", "bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}
