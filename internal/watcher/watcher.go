// Package watcher turns file system activity in a capture directory into
// debounced per-file events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"ladybug/internal/logging"
)

// ErrClosed is returned by operations on a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// EventType represents the type of file system event
type EventType string

const (
	EventCreate EventType = "create"
	EventModify EventType = "modify"
	EventDelete EventType = "delete"
	EventRename EventType = "rename"
)

// Event is the settled state of one file after its debounce window.
type Event struct {
	Path string
	Type EventType
}

// Gone reports whether the file no longer exists at Path.
func (e Event) Gone() bool {
	return e.Type == EventDelete || e.Type == EventRename
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithFilter drops events for paths the filter rejects.
func WithFilter(filter func(path string) bool) Option {
	return func(w *Watcher) { w.filter = filter }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) { w.logger = logger.Named("watcher") }
}

// Watcher watches a directory and calls the handler once per file after
// the file has been quiet for the debounce duration.
type Watcher struct {
	dir      string
	debounce time.Duration
	handler  func(context.Context, Event)
	filter   func(string) bool
	logger   *logging.Logger
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]*time.Timer
	lastType  map[string]EventType
	stopped   bool
}

// New creates a Watcher for dir.
func New(dir string, debounce time.Duration, handler func(context.Context, Event), opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch path %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		logger:   logging.NewNop(),
		fs:       fs,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
		lastType: make(map[string]EventType),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start runs the event loop until ctx is done or Close is called. Handlers
// receive ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.loop(ctx)
	w.logger.Info(ctx, "watching captures", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	return nil
}

// Close stops watching and cancels pending events.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	w.pendingMu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.lastType = make(map[string]EventType)
	w.stopped = true
	w.pendingMu.Unlock()

	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))

		case <-ctx.Done():
			w.Close()
			return

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Has(fsnotify.Remove):
		eventType = EventDelete
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventModify
	default:
		return
	}

	if w.filter != nil && !w.filter(event.Name) {
		return
	}
	w.schedule(ctx, Event{Path: event.Name, Type: eventType})
}

// schedule restarts the quiet period of the file. A create followed by
// writes inside one window is still reported as a create.
func (w *Watcher) schedule(ctx context.Context, e Event) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.stopped {
		return
	}

	if timer, exists := w.pending[e.Path]; exists {
		timer.Stop()
	}
	if previous, ok := w.lastType[e.Path]; ok && previous == EventCreate && e.Type == EventModify {
		e.Type = EventCreate
	}
	w.lastType[e.Path] = e.Type

	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.pendingMu.Lock()
		if w.pending[e.Path] != timer {
			// superseded after this timer already fired
			w.pendingMu.Unlock()
			return
		}
		delete(w.pending, e.Path)
		delete(w.lastType, e.Path)
		w.pendingMu.Unlock()

		w.logger.Debug(ctx, "capture changed", zap.String("path", e.Path), zap.String("type", string(e.Type)))
		w.handler(ctx, e)
	})
	w.pending[e.Path] = timer
}
