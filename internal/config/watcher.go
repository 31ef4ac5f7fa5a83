package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"

	"github.com/dshills/scenekit/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and hands
// the validated result to its handlers. Invalid files are logged and
// ignored so the last good configuration stays in effect.
//
// Handlers run on the watcher goroutine. Callers that own single-threaded
// state should hop onto their own loop, e.g. with frame.Scheduler.Post.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	clock    clock.Clock
	debounce time.Duration
	log      *logging.Logger

	mu       sync.Mutex
	timer    *clock.Timer
	handlers []func(*Config)
	running  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatchClock sets the clock driving the debounce timer.
func WithWatchClock(c clock.Clock) WatchOption {
	return func(w *Watcher) {
		w.clock = c
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *logging.Logger) WatchOption {
	return func(w *Watcher) {
		w.log = l
	}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		fsw:      fsw,
		clock:    clock.New(),
		debounce: DefaultDebounce,
		log:      logging.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithComponent("config-watcher")
	return w, nil
}

// OnChange registers a handler for reloaded configurations.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Start watches the file's directory, so that editors replacing the file
// by rename are seen too.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.done)
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(ev.Name) == w.path
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	handlers := append(([]func(*Config))(nil), w.handlers...)
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("reload %s: %v", w.path, err)
		return
	}
	w.log.Info("reloaded %s", w.path)
	for _, fn := range handlers {
		w.call(fn, cfg)
	}
}

func (w *Watcher) call(fn func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config handler panicked: %v", r)
		}
	}()
	fn(cfg)
}
