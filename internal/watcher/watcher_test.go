package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladybug/internal/logging"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func (c *collector) has(typ EventType, path string) bool {
	for _, e := range c.snapshot() {
		if e.Type == typ && e.Path == path {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, dir string, debounce time.Duration, opts ...Option) *collector {
	t.Helper()
	c := &collector{}
	w, err := New(dir, debounce, c.handle, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	require.NoError(t, w.Start(context.Background()))
	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)
	return c
}

func TestNewInvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/that/does/not/exist", 100*time.Millisecond, func(context.Context, Event) {})
	assert.Error(t, err)
}

func TestWatcherCreateEvent(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir, 50*time.Millisecond)

	file := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	assert.Eventually(t, func() bool { return c.has(EventCreate, file) }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherModifyEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	c := startWatcher(t, dir, 50*time.Millisecond)
	c.reset()

	require.NoError(t, os.WriteFile(file, []byte(`{"name":"x"}`), 0o644))

	assert.Eventually(t, func() bool { return c.has(EventModify, file) }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherDeleteEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	c := startWatcher(t, dir, 50*time.Millisecond)
	c.reset()

	require.NoError(t, os.Remove(file))

	assert.Eventually(t, func() bool { return c.has(EventDelete, file) }, 2*time.Second, 20*time.Millisecond)
	assert.True(t, Event{Path: file, Type: EventDelete}.Gone())
}

func TestWatcherDebouncing(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir, 100*time.Millisecond)

	file := filepath.Join(dir, "report.json")
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	events := c.snapshot()
	require.NotEmpty(t, events)
	assert.Less(t, len(events), 10)
	assert.Equal(t, EventCreate, events[0].Type)
}

func TestWatcherFilter(t *testing.T) {
	dir := t.TempDir()
	logger := logging.NewTestLogger()
	c := startWatcher(t, dir, 30*time.Millisecond,
		WithFilter(func(path string) bool { return strings.HasSuffix(path, ".json") }),
		WithLogger(logger.Logger),
	)

	skipped := filepath.Join(dir, "notes.txt")
	kept := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(skipped, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(kept, []byte("{}"), 0o644))

	assert.Eventually(t, func() bool { return c.has(EventCreate, kept) }, 2*time.Second, 20*time.Millisecond)
	for _, e := range c.snapshot() {
		assert.NotEqual(t, skipped, e.Path)
	}
	assert.NotEmpty(t, logger.FilterMessage("watching captures").All())
}

func TestWatcherClose(t *testing.T) {
	w, err := New(t.TempDir(), 100*time.Millisecond, func(context.Context, Event) {})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Close())
	// Calling Close again should not panic or error
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Start(context.Background()), ErrClosed)
}

func TestWatcherStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w, err := New(dir, 20*time.Millisecond, c.handle)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.closed
	}, time.Second, 10*time.Millisecond)
}
