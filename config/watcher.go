package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeCallback is called with the previous and the reloaded value
type ChangeCallback[T any] func(old, new T)

// WatcherOptions configures a Watcher
type WatcherOptions struct {
	// Quiet period after the last write before reloading
	Debounce time.Duration

	// Logger for reload failures; nil disables logging
	Logger *zap.Logger
}

// Watcher keeps the decoded contents of a file current. The file's
// directory is watched, so editors that replace the file by rename are
// followed.
type Watcher[T any] struct {
	path   string
	load   func(string) (T, error)
	opts   WatcherOptions
	logger *zap.Logger

	// Current value
	current   T
	currentMu sync.RWMutex

	// File system watcher
	fsWatcher *fsnotify.Watcher

	// Change callbacks
	callbacks   []ChangeCallback[T]
	callbacksMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher loads path once with load and prepares to watch it. Call Start
// to begin reloading on change.
func NewWatcher[T any](path string, load func(string) (T, error), opts WatcherOptions) (*Watcher[T], error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	initial, err := load(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", abs, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher[T]{
		path:      abs,
		load:      load,
		opts:      opts,
		logger:    logger.With(zap.String("file", abs)),
		current:   initial,
		fsWatcher: fsWatcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start starts watching the file
func (w *Watcher[T]) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	w.wg.Add(1)
	go w.watchLoop()
	return nil
}

// Stop stops watching and waits for the watch loop to exit
func (w *Watcher[T]) Stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// Current returns the most recently loaded value
func (w *Watcher[T]) Current() T {
	w.currentMu.RLock()
	defer w.currentMu.RUnlock()
	return w.current
}

// OnChange registers a callback for successful reloads
func (w *Watcher[T]) OnChange(callback ChangeCallback[T]) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload reloads the file immediately. On failure the current value is kept.
func (w *Watcher[T]) Reload() error {
	next, err := w.load(w.path)
	if err != nil {
		return fmt.Errorf("failed to reload %s: %w", w.path, err)
	}

	w.currentMu.Lock()
	prev := w.current
	w.current = next
	w.currentMu.Unlock()

	w.notify(prev, next)
	w.logger.Info("file reloaded")
	return nil
}

func (w *Watcher[T]) watchLoop() {
	defer w.wg.Done()

	var timer *time.Timer
	var pending <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := w.Reload(); err != nil {
				w.logger.Warn("keeping previous contents", zap.Error(err))
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher[T]) notify(prev, next T) {
	w.callbacksMu.RLock()
	callbacks := make([]ChangeCallback[T], len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("change callback panicked", zap.Any("panic", r))
				}
			}()
			callback(prev, next)
		}()
	}
}
