package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newTestWatcher(t *testing.T, opts ...Option) *FSNotifyWatcher {
	t.Helper()
	w, err := NewFSNotifyWatcher(opts...)
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// waitFor drains events until one matches or the timeout expires.
func waitFor(t *testing.T, events <-chan Event, match func(Event) bool) bool {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			if match(e) {
				return true
			}
		case <-timeout:
			return false
		}
	}
}

func TestFSNotifyWatcher_WatchUnwatch(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()

	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch error = %v", err)
	}
	if !w.IsWatching(dir) {
		t.Error("should be watching dir")
	}
	if err := w.Watch(dir); err != ErrAlreadyWatching {
		t.Errorf("Watch again error = %v, want ErrAlreadyWatching", err)
	}

	if err := w.Unwatch(dir); err != nil {
		t.Fatalf("Unwatch error = %v", err)
	}
	if w.IsWatching(dir) {
		t.Error("should not be watching dir after Unwatch")
	}
	if err := w.Unwatch(dir); err != ErrNotWatching {
		t.Errorf("Unwatch again error = %v, want ErrNotWatching", err)
	}
}

func TestFSNotifyWatcher_WatchNonexistent(t *testing.T) {
	w := newTestWatcher(t)
	missing := filepath.Join(t.TempDir(), "missing")

	if err := w.Watch(missing); err != ErrPathNotExist {
		t.Errorf("Watch error = %v, want ErrPathNotExist", err)
	}
	if err := w.WatchRecursive(missing); err != ErrPathNotExist {
		t.Errorf("WatchRecursive error = %v, want ErrPathNotExist", err)
	}
}

func TestFSNotifyWatcher_WatchRecursiveSkipsExcluded(t *testing.T) {
	w := newTestWatcher(t, WithExcludeDirs([]string{"node_modules", ".git"}))
	dir := t.TempDir()

	for _, sub := range []string{"src/pkg", "node_modules/lib", ".git/objects", "src/node_modules"} {
		if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(sub)), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.WatchRecursive(dir); err != nil {
		t.Fatalf("WatchRecursive error = %v", err)
	}

	want := []string{dir, filepath.Join(dir, "src"), filepath.Join(dir, "src", "pkg")}
	got := w.WatchedPaths()
	if len(got) != len(want) {
		t.Fatalf("WatchedPaths = %v, want %v", got, want)
	}
	for _, p := range want {
		if !w.IsWatching(p) {
			t.Errorf("should be watching %s", p)
		}
	}
	if w.IsWatching(filepath.Join(dir, "node_modules")) {
		t.Error("node_modules must not be watched")
	}
}

func TestFSNotifyWatcher_MaxWatches(t *testing.T) {
	w := newTestWatcher(t, WithMaxWatches(1))
	a, b := t.TempDir(), t.TempDir()

	if err := w.Watch(a); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(b); err != ErrWatchLimit {
		t.Errorf("Watch over limit error = %v, want ErrWatchLimit", err)
	}
}

func TestFSNotifyWatcher_Stats(t *testing.T) {
	w := newTestWatcher(t)
	_ = w.Watch(t.TempDir())

	stats := w.Stats()
	if stats.WatchedPaths != 1 {
		t.Errorf("WatchedPaths = %d, want 1", stats.WatchedPaths)
	}
	if stats.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}
}

func TestFSNotifyWatcher_Close(t *testing.T) {
	w, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher error = %v", err)
	}
	dir := t.TempDir()
	_ = w.Watch(dir)

	if err := w.Close(); err != nil {
		t.Errorf("Close error = %v", err)
	}
	if err := w.Watch(dir); err != ErrWatcherClosed {
		t.Errorf("Watch after close error = %v, want ErrWatcherClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close again error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events channel should be closed")
	}
}

func TestFSNotifyWatcher_FileEvents(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatalf("WatchRecursive error = %v", err)
	}

	file := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, w.Events(), func(e Event) bool { return e.Path == file && e.Op.Has(OpCreate) }) {
		t.Fatal("no create event for test.txt")
	}

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, w.Events(), func(e Event) bool { return e.Path == file && e.Op.Has(OpRemove) }) {
		t.Fatal("no remove event for test.txt")
	}
}

func TestFSNotifyWatcher_NewDirectoryIsWatched(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(dir, "newdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, w.Events(), func(e Event) bool { return e.Path == sub && e.Op.Has(OpCreate) }) {
		t.Fatal("no create event for newdir")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !w.IsWatching(sub) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !w.IsWatching(sub) {
		t.Fatal("newdir should be watched after creation")
	}

	nested := filepath.Join(sub, "inner.txt")
	if err := os.WriteFile(nested, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, w.Events(), func(e Event) bool { return e.Path == nested }) {
		t.Fatal("no event for a file inside the new directory")
	}
}

func TestFSNotifyWatcher_ExcludedEventsDropped(t *testing.T) {
	w := newTestWatcher(t, WithExcludeDirs([]string{"node_modules"}))
	dir := t.TempDir()
	if err := w.WatchRecursive(dir); err != nil {
		t.Fatal(err)
	}

	if err := os.Mkdir(filepath.Join(dir, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dir, "marker.txt")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []string
	ok := waitFor(t, w.Events(), func(e Event) bool {
		seen = append(seen, e.Path)
		return e.Path == marker
	})
	if !ok {
		t.Fatal("no event for marker.txt")
	}
	for _, p := range seen {
		if filepath.Base(p) == "node_modules" {
			t.Errorf("event reported for excluded directory: %s", p)
		}
	}
	if w.IsWatching(filepath.Join(dir, "node_modules")) {
		t.Error("excluded directory was registered")
	}
}

func TestFSNotifyWatcher_EventFilter(t *testing.T) {
	w := newTestWatcher(t, WithEventFilter(func(e Event) bool {
		return filepath.Ext(e.Path) != ".tmp"
	}))
	dir := t.TempDir()
	if err := w.Watch(dir); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.tmp"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(keep, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ok := waitFor(t, w.Events(), func(e Event) bool {
		if filepath.Ext(e.Path) == ".tmp" {
			t.Errorf("filtered event delivered: %v", e)
		}
		return e.Path == keep
	})
	if !ok {
		t.Fatal("no event for b.txt")
	}
}

func TestConvertOp(t *testing.T) {
	tests := []struct {
		in   fsnotify.Op
		want Op
	}{
		{0, 0},
		{fsnotify.Create, OpCreate},
		{fsnotify.Write | fsnotify.Chmod, OpWrite | OpChmod},
		{fsnotify.Remove, OpRemove},
		{fsnotify.Rename, OpRename},
	}

	for _, tt := range tests {
		if got := convertOp(tt.in); got != tt.want {
			t.Errorf("convertOp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
