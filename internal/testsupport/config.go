package testsupport

import (
	"path/filepath"
	"testing"

	"hlsforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.IncomingDir = filepath.Join(base, "incoming")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.Endpoint = "http://127.0.0.1:0"
	cfg.Storage.Bucket = "test-bucket"
	cfg.Storage.AccessKeyID = "test"
	cfg.Storage.SecretAccessKey = "test"
	cfg.Workflow.Workers = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWorkers overrides the worker pool size on the test config.
func WithWorkers(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.Workers = n
	}
}

// WithSegmentSeconds overrides the segment duration on the test config.
func WithSegmentSeconds(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Encoding.SegmentSeconds = seconds
	}
}
