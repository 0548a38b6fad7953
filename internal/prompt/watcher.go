package prompt

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the registry's custom template file when it is edited
// outside the process. Writes are debounced so rapid editor saves trigger a
// single reload.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	registry *Registry
	logger   *zap.Logger

	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the registry's configured file. The
// registry must have been constructed with WithFile.
func NewWatcher(registry *Registry, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     fw,
		registry:    registry,
		logger:      logger,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory rather than the file: editors replace files on
	// save, which would otherwise drop the watch.
	dir := filepath.Dir(w.registry.filePath)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("prompt watcher: initial watch failed",
			zap.String("dir", dir), zap.Error(err))
	} else {
		w.logger.Info("prompt watcher: watching", zap.String("dir", dir))
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("prompt watcher: error closing", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var pending bool
	var lastEvent time.Time
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	target := filepath.Clean(w.registry.filePath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			lastEvent = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("prompt watcher: fs error", zap.Error(err))

		case <-ticker.C:
			if !pending || time.Since(lastEvent) < w.debounceDur {
				continue
			}
			pending = false
			if err := w.registry.loadFromFile(); err != nil {
				w.logger.Warn("prompt watcher: reload failed", zap.Error(err))
			} else {
				w.logger.Info("prompt watcher: custom prompts reloaded")
			}
		}
	}
}
