package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/apiflow/pkg/config"
)

// DefaultDebounce is the quiet period after the last file event before the
// settings are reloaded.
const DefaultDebounce = 200 * time.Millisecond

// ErrWatcherRunning is returned by Watch when the watcher is already running.
var ErrWatcherRunning = errors.New("settings watcher already running")

// Reloader applies a changed configuration. gateway.Manager implements it.
type Reloader interface {
	Reload(ctx context.Context, cfg *config.ProxyConfig) error
}

// Watcher reloads the gateway when the settings file changes on disk. It
// watches the file's directory so editors that replace the file by rename
// are seen, and ignores writes whose content matches what the store last
// loaded or saved.
type Watcher struct {
	store    *Store
	reloader Reloader
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(store *Store, reloader Reloader, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		reloader: reloader,
		debounce: debounce,
		logger:   slog.Default().With("component", "settings.watcher"),
	}
}

// Watch blocks until ctx is cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(doneCh)
	}()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.store.Path())
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	deb := newDebouncer(w.debounce)
	defer deb.Stop()

	w.logger.Info("settings watcher started",
		"path", w.store.Path(),
		"debounce_ms", w.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settings watcher stopped")
			return nil

		case <-stopCh:
			w.logger.Info("settings watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("settings file event", "op", event.Op.String())
			deb.Trigger(func() { w.apply(ctx) })

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("settings watcher error", "error", err)
		}
	}
}

// Stop stops a running watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.store.Path()
}

func (w *Watcher) apply(ctx context.Context) {
	changed, err := w.store.Changed()
	if err != nil {
		w.logger.Error("failed to read settings", "error", err)
		return
	}
	if !changed {
		return
	}

	cfg, err := w.store.Load()
	if err != nil {
		w.logger.Error("failed to load changed settings", "error", err)
		return
	}
	if cfg == nil {
		return
	}

	if err := w.reloader.Reload(ctx, cfg); err != nil {
		w.logger.Error("settings reload rejected", "error", err)
		return
	}
	w.logger.Info("settings reloaded from disk", "listen_port", cfg.ListenPort)
}

// debouncer runs the last triggered callback once events stop arriving for
// the interval.
type debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
