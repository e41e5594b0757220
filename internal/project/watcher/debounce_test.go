package watcher

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// mockWatcher feeds hand-made events to a DebouncedWatcher.
type mockWatcher struct {
	mu       sync.Mutex
	events   chan Event
	errors   chan error
	watching map[string]bool
	closed   bool
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{
		events:   make(chan Event, 100),
		errors:   make(chan error, 100),
		watching: make(map[string]bool),
	}
}

func (m *mockWatcher) Watch(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watching[path] = true
	return nil
}

func (m *mockWatcher) WatchRecursive(path string) error { return m.Watch(path) }

func (m *mockWatcher) Unwatch(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watching, path)
	return nil
}

func (m *mockWatcher) Events() <-chan Event { return m.events }

func (m *mockWatcher) Errors() <-chan error { return m.errors }

func (m *mockWatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
		close(m.errors)
	}
	return nil
}

func (m *mockWatcher) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{WatchedPaths: len(m.watching), DroppedEvents: 1}
}

func (m *mockWatcher) IsWatching(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watching[path]
}

func (m *mockWatcher) WatchedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.watching))
	for p := range m.watching {
		out = append(out, p)
	}
	return out
}

func (m *mockWatcher) emit(path string, op Op) {
	m.events <- Event{Path: path, Op: op, Timestamp: time.Now()}
}

func receive(t *testing.T, ch <-chan Event, within time.Duration) (Event, bool) {
	t.Helper()
	select {
	case e, ok := <-ch:
		return e, ok
	case <-time.After(within):
		return Event{}, false
	}
}

func TestDebouncedWatcher_MergesBurst(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, 50*time.Millisecond, 0)
	defer dw.Close()

	inner.emit("/p/a.txt", OpCreate)
	inner.emit("/p/a.txt", OpWrite)
	inner.emit("/p/a.txt", OpWrite)

	e, ok := receive(t, dw.Events(), time.Second)
	if !ok {
		t.Fatal("no debounced event")
	}
	if e.Path != "/p/a.txt" || e.Op != OpCreate|OpWrite {
		t.Errorf("event = %+v, want CREATE|WRITE on /p/a.txt", e)
	}

	if _, ok := receive(t, dw.Events(), 150*time.Millisecond); ok {
		t.Error("burst should yield exactly one event")
	}
	if dw.Merged() != 2 {
		t.Errorf("Merged() = %d, want 2", dw.Merged())
	}
}

func TestDebouncedWatcher_ContinuousWritesStillDeliver(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, 50*time.Millisecond, 0)
	defer dw.Close()

	inner.emit("/p/new.log", OpCreate)

	var got []Event
	deadline := time.Now().Add(MaxWaitFor(50*time.Millisecond) + 500*time.Millisecond)
	for time.Now().Before(deadline) {
		inner.emit("/p/new.log", OpWrite)
		time.Sleep(20 * time.Millisecond)
		select {
		case e := <-dw.Events():
			got = append(got, e)
		default:
		}
	}

	if len(got) == 0 {
		t.Fatal("a path written faster than the delay was never delivered")
	}
	if got[0].Path != "/p/new.log" || got[0].Op&OpCreate == 0 {
		t.Errorf("first event = %+v, want CREATE on /p/new.log", got[0])
	}
}

func TestMaxWaitFor(t *testing.T) {
	if got := MaxWaitFor(10 * time.Millisecond); got != time.Second {
		t.Errorf("MaxWaitFor(10ms) = %v, want 1s", got)
	}
	if got := MaxWaitFor(500 * time.Millisecond); got != 5*time.Second {
		t.Errorf("MaxWaitFor(500ms) = %v, want 5s", got)
	}
}

func TestDebouncedWatcher_SeparatePaths(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, 30*time.Millisecond, 0)
	defer dw.Close()

	inner.emit("/p/a", OpWrite)
	inner.emit("/p/b", OpWrite)

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		e, ok := receive(t, dw.Events(), time.Second)
		if !ok {
			t.Fatalf("got %d events, want 2", i)
		}
		seen[e.Path] = true
	}
	if !seen["/p/a"] || !seen["/p/b"] {
		t.Errorf("paths = %v", seen)
	}
}

func TestDebouncedWatcher_Flush(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, time.Hour, 0)
	defer dw.Close()

	inner.emit("/p/a", OpWrite)

	deadline := time.Now().Add(time.Second)
	for dw.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if dw.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", dw.PendingCount())
	}

	dw.Flush()

	if _, ok := receive(t, dw.Events(), time.Second); !ok {
		t.Fatal("Flush should deliver the pending event")
	}
	if dw.PendingCount() != 0 {
		t.Errorf("PendingCount() after Flush = %d", dw.PendingCount())
	}
}

func TestDebouncedWatcher_ForwardsErrors(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, 0, 0)
	defer dw.Close()

	boom := errors.New("boom")
	inner.errors <- boom

	select {
	case err := <-dw.Errors():
		if err != boom {
			t.Errorf("error = %v, want boom", err)
		}
	case <-time.After(time.Second):
		t.Fatal("error not forwarded")
	}
}

func TestDebouncedWatcher_DelegatesAndStats(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, time.Hour, 0)
	defer dw.Close()

	if err := dw.Watch("/p"); err != nil {
		t.Fatal(err)
	}
	if !dw.IsWatching("/p") || len(dw.WatchedPaths()) != 1 {
		t.Error("Watch should reach the inner watcher")
	}

	inner.emit("/p/x", OpWrite)
	deadline := time.Now().Add(time.Second)
	for dw.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stats := dw.Stats()
	if stats.WatchedPaths != 1 || stats.PendingEvents != 1 || stats.DroppedEvents != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := dw.Unwatch("/p"); err != nil || dw.IsWatching("/p") {
		t.Error("Unwatch should reach the inner watcher")
	}
}

func TestDebouncedWatcher_CloseDiscardsPending(t *testing.T) {
	inner := newMockWatcher()
	dw := NewDebouncedWatcher(inner, time.Second, 0)

	inner.emit("/p/a", OpWrite)
	if err := dw.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := dw.Close(); err != nil {
		t.Fatalf("second Close error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	for e := range dw.Events() {
		t.Errorf("event delivered after Close: %+v", e)
	}
	if !inner.closed {
		t.Error("inner watcher should be closed")
	}
}
