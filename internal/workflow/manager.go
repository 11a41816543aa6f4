package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hlsforge/internal/config"
	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/stage"
)

// Handlers wires one handler per pipeline stage.
type Handlers struct {
	Validate  stage.Handler
	Normalize stage.Handler
	Encode    stage.Handler
	Verify    stage.Handler
	Publish   stage.Handler
	Clean     stage.Handler
}

func (h Handlers) complete() bool {
	return h.Validate != nil && h.Normalize != nil && h.Encode != nil &&
		h.Verify != nil && h.Publish != nil && h.Clean != nil
}

// Manager coordinates queue processing across the worker pool.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	handlers     Handlers
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, handlers Handlers) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		handlers:     handlers,
		pollInterval: pollInterval,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Start resets jobs abandoned by a previous run and launches the worker
// pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if !m.handlers.complete() {
		return errors.New("workflow stages not configured")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("requeued jobs abandoned mid-stage", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.WorkerCount()
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Info("workflow started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the worker pool is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent queue access error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Health runs every stage handler's health check.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	checks := []stage.Handler{
		m.handlers.Validate,
		m.handlers.Normalize,
		m.handlers.Encode,
		m.handlers.Verify,
		m.handlers.Publish,
		m.handlers.Clean,
	}
	out := make([]stage.Health, 0, len(checks))
	for _, handler := range checks {
		if handler == nil {
			continue
		}
		out = append(out, handler.HealthCheck(ctx))
	}
	return out
}
