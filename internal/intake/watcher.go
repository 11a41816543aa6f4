// Package intake feeds the queue from the incoming directory. A filesystem
// watcher picks up new files, waits for them to stop growing so a copy in
// progress is never enqueued, and creates one job per file.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"hlsforge/internal/config"
	"hlsforge/internal/logging"
	"hlsforge/internal/queue"
	"hlsforge/internal/services"
)

// pendingFile tracks a candidate between size checks.
type pendingFile struct {
	size       int64
	lastChange time.Time
}

// Watcher monitors the incoming directory and enqueues stable files.
type Watcher struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	checkInterval time.Duration
	stableFor     time.Duration

	mu      sync.Mutex
	pending map[string]*pendingFile
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher constructs the intake watcher.
func NewWatcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Watcher {
	stableFor := time.Duration(cfg.Intake.MinStableSeconds) * time.Second
	if stableFor <= 0 {
		stableFor = 2 * time.Second
	}
	return &Watcher{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "intake"),
		checkInterval: time.Second,
		stableFor:     stableFor,
		pending:       make(map[string]*pendingFile),
	}
}

// Start watches the incoming directory. Files already present at startup are
// enqueued through the same stability path as newly arriving ones.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("intake watcher already running")
	}

	dir := w.cfg.Paths.IncomingDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create incoming dir: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if err := w.scanExisting(dir); err != nil {
		fsWatcher.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(2)
	go w.consumeEvents(runCtx, fsWatcher)
	go w.checkPending(runCtx)

	w.logger.Info("watching incoming directory", logging.String("dir", dir))
	return nil
}

// Stop terminates the watcher and waits for its goroutines.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) scanExisting(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan incoming dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.track(filepath.Join(dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) consumeEvents(ctx context.Context, fsWatcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsWatcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
				w.track(event.Name)
			case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
				w.forget(event.Name)
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", logging.Error(err))
		}
	}
}

func (w *Watcher) track(path string) {
	if !w.allowedExtension(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[path]; !ok {
		w.pending[path] = &pendingFile{size: -1, lastChange: time.Now()}
	}
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, path)
}

func (w *Watcher) allowedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.cfg.Intake.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// checkPending promotes files whose size has been steady long enough.
func (w *Watcher) checkPending(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.stablePaths() {
				if err := w.enqueue(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("failed to enqueue file",
						logging.String("path", path),
						logging.Error(err))
				}
			}
		}
	}
}

func (w *Watcher) stablePaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var stable []string
	for path, state := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != state.size {
			state.size = info.Size()
			state.lastChange = now
			continue
		}
		if state.size > 0 && now.Sub(state.lastChange) >= w.stableFor {
			stable = append(stable, path)
			delete(w.pending, path)
		}
	}
	return stable
}

// Enqueue creates a job for the given file immediately, bypassing the
// stability wait. The CLI add command uses this path.
func (w *Watcher) Enqueue(ctx context.Context, path string) (*queue.Job, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "intake", "stat file",
			fmt.Sprintf("cannot read %s", path), err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, services.Wrap(services.ErrValidation, "intake", "stat file",
			fmt.Sprintf("%s is not a regular non-empty file", path), nil)
	}
	return w.createJob(ctx, path)
}

func (w *Watcher) enqueue(ctx context.Context, path string) error {
	_, err := w.createJob(ctx, path)
	return err
}

func (w *Watcher) createJob(ctx context.Context, path string) (*queue.Job, error) {
	existing, err := w.store.FindActiveBySource(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		w.logger.Debug("source already queued",
			logging.String("path", path),
			logging.String(logging.FieldVideoID, existing.VideoID))
		return existing, nil
	}

	videoID, err := w.resolveVideoID(ctx, path)
	if err != nil {
		return nil, err
	}

	job, err := w.store.NewJob(ctx, videoID, path)
	if err != nil {
		return nil, err
	}
	w.logger.Info("file enqueued",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("path", path),
		logging.Int64(logging.FieldJobID, job.ID),
	)
	return job, nil
}

// resolveVideoID sanitizes the file name, suffixing a short random token
// when another job already owns the identifier.
func (w *Watcher) resolveVideoID(ctx context.Context, path string) (string, error) {
	videoID := SanitizeVideoID(path)
	existing, err := w.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return videoID, nil
	}
	return fmt.Sprintf("%s_%s", videoID, uuid.NewString()[:8]), nil
}
