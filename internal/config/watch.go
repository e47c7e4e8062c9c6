package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher holds the current configuration and reloads it when the file
// changes. A reload that fails to decode or validate keeps the previous
// configuration and is reported on Errors.
//
// Thread-safety: all methods are safe for concurrent use.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	fs     *fsnotify.Watcher
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the reload delay after the last file event.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher loads path and starts watching its directory.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		current:  cfg,
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	w.fs = fs
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Config returns the current configuration. Callers must not modify it.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Errors reports reload failures. Only the latest unread error is kept.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	name := filepath.Base(w.path)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.report(fmt.Errorf("watch config: %w", err))
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "err", err)
		w.report(err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append(([]func(*Config))(nil), w.onChange...)
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errs <- err:
		return
	default:
	}
	// Replace the stale error.
	select {
	case <-w.errs:
	default:
	}
	select {
	case w.errs <- err:
	default:
	}
}
