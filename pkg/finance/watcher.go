package finance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/async"
)

const (
	defaultDebounce      = 500 * time.Millisecond
	defaultReloadTimeout = 5 * time.Minute
)

// Reloader is what a Watcher triggers
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads the engine when a configuration file changes. Bursts of
// events, as editors produce when saving, trigger a single reload.
type Watcher struct {
	path     string
	target   Reloader
	debounce time.Duration
	log      *logrus.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for path, a file or a directory
func NewWatcher(path string, target Reloader, log *logrus.Logger) *Watcher {
	if log == nil {
		log = logrus.New()
	}
	return &Watcher{
		path:     path,
		target:   target,
		debounce: defaultDebounce,
		log:      log,
	}
}

// Start begins watching. A file is watched through its directory, so it
// survives being replaced by rename.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", w.path, err)
	}

	dir, file := w.path, ""
	if !info.IsDir() {
		dir, file = filepath.Dir(w.path), filepath.Base(w.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.watcher = watcher
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, watcher, file, w.done)

	w.log.WithField("path", w.path).Info("Watching configuration for changes")
	return nil
}

// Stop ends watching and waits for the event loop to exit
func (w *Watcher) Stop() error {
	w.mu.Lock()
	watcher, cancel, done := w.watcher, w.cancel, w.done
	w.watcher = nil
	w.mu.Unlock()

	if watcher == nil {
		return nil
	}
	cancel()
	err := watcher.Close()
	<-done
	return err
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher, file string, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if file != "" && filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.log.WithField("file", event.Name).Debugf("Configuration changed: %s", event.Op)
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("Watcher error: %v", err)

		case <-timer.C:
			async.SafeGo(ctx, w.log, defaultReloadTimeout, "config reload", w.target.Reload)
		}
	}
}
