package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hlsforge/internal/cleanup"
	"hlsforge/internal/config"
	"hlsforge/internal/deps"
	"hlsforge/internal/encoding"
	"hlsforge/internal/intake"
	"hlsforge/internal/logging"
	"hlsforge/internal/metadata"
	"hlsforge/internal/normalize"
	"hlsforge/internal/publish"
	"hlsforge/internal/queue"
	"hlsforge/internal/validation"
	"hlsforge/internal/verify"
	"hlsforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the daemon runtime loop and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("hlsforge-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update hlsforge.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "hlsforge-*.log")

	pidPath := filepath.Join(cfg.Paths.LogDir, "hlsforge.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	handlers, err := BuildHandlers(signalCtx, cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	manager := workflow.NewManager(cfg, store, logger, handlers)
	watcher := intake.NewWatcher(cfg, store, logger)

	d, err := New(cfg, store, logger, manager, watcher)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("daemon shutting down")
	return nil
}

// BuildHandlers wires one handler per pipeline stage from the configuration.
func BuildHandlers(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (workflow.Handlers, error) {
	objects, err := publish.NewS3Store(ctx, cfg)
	if err != nil {
		return workflow.Handlers{}, fmt.Errorf("init object store: %w", err)
	}

	normalizer, err := normalize.New(cfg, store, logger)
	if err != nil {
		return workflow.Handlers{}, fmt.Errorf("init normalizer: %w", err)
	}
	encoder, err := encoding.New(cfg, store, logger)
	if err != nil {
		return workflow.Handlers{}, fmt.Errorf("init encoder: %w", err)
	}

	return workflow.Handlers{
		Validate:  validation.New(cfg, store, logger),
		Normalize: normalizer,
		Encode:    encoder,
		Verify:    verify.New(cfg, store, logger),
		Publish:   publish.New(cfg, store, logger, objects, metadata.NewService(cfg)),
		Clean:     cleanup.New(cfg, store, logger),
	}, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "hlsforge.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
