package watcher

import (
	"sync"
	"sync/atomic"
	"time"
)

// DebouncedWatcher wraps a Watcher and holds each event until its path has
// been quiet for the delay. Events on the same path within the window merge
// into one event whose Op is the union of the observed operations. A path
// that never goes quiet is still delivered once it has been pending for the
// max wait.
type DebouncedWatcher struct {
	inner   Watcher
	delay   time.Duration
	maxWait time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	closed  bool

	events   chan Event
	errors   chan error
	closeCh  chan struct{}
	closedWg sync.WaitGroup

	merged  int64
	dropped int64
}

type pendingEvent struct {
	event Event
	first time.Time
	timer *time.Timer
}

// MaxWaitFor returns the longest a path stays pending under delay.
func MaxWaitFor(delay time.Duration) time.Duration {
	return max(10*delay, time.Second)
}

// NewDebouncedWatcher wraps inner. A non-positive delay uses the default
// from DefaultConfig; a non-positive bufSize uses 100.
func NewDebouncedWatcher(inner Watcher, delay time.Duration, bufSize int) *DebouncedWatcher {
	if delay <= 0 {
		delay = DefaultConfig().DebounceDelay
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	dw := &DebouncedWatcher{
		inner:   inner,
		delay:   delay,
		maxWait: MaxWaitFor(delay),
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, bufSize),
		errors:  make(chan error, bufSize),
		closeCh: make(chan struct{}),
	}

	dw.closedWg.Add(1)
	go dw.processLoop()

	return dw
}

// Watch registers a path with the inner watcher.
func (dw *DebouncedWatcher) Watch(path string) error {
	return dw.inner.Watch(path)
}

// WatchRecursive registers a tree with the inner watcher.
func (dw *DebouncedWatcher) WatchRecursive(path string) error {
	return dw.inner.WatchRecursive(path)
}

// Unwatch removes a path from the inner watcher.
func (dw *DebouncedWatcher) Unwatch(path string) error {
	return dw.inner.Unwatch(path)
}

// Events returns the debounced event channel.
func (dw *DebouncedWatcher) Events() <-chan Event {
	return dw.events
}

// Errors returns the error channel.
func (dw *DebouncedWatcher) Errors() <-chan error {
	return dw.errors
}

// Close discards pending events, closes the inner watcher, and closes the
// channels. It is safe to call more than once.
func (dw *DebouncedWatcher) Close() error {
	dw.mu.Lock()
	if dw.closed {
		dw.mu.Unlock()
		return nil
	}
	dw.closed = true
	close(dw.closeCh)
	for path, p := range dw.pending {
		p.timer.Stop()
		delete(dw.pending, path)
	}
	dw.mu.Unlock()

	err := dw.inner.Close()
	dw.closedWg.Wait()

	// Timers stopped above may already be running fireEvent; the lock
	// orders them before the channels close.
	dw.mu.Lock()
	close(dw.events)
	close(dw.errors)
	dw.mu.Unlock()

	return err
}

// Stats returns the inner watcher's statistics with pending and dropped
// counts from the debouncer.
func (dw *DebouncedWatcher) Stats() Stats {
	dw.mu.Lock()
	pendingCount := len(dw.pending)
	dw.mu.Unlock()

	stats := dw.inner.Stats()
	stats.PendingEvents = pendingCount
	stats.DroppedEvents += atomic.LoadInt64(&dw.dropped)
	return stats
}

// Merged returns how many events were folded into an earlier pending one.
func (dw *DebouncedWatcher) Merged() int64 {
	return atomic.LoadInt64(&dw.merged)
}

// IsWatching reports whether the inner watcher has path registered.
func (dw *DebouncedWatcher) IsWatching(path string) bool {
	return dw.inner.IsWatching(path)
}

// WatchedPaths returns the inner watcher's registered paths.
func (dw *DebouncedWatcher) WatchedPaths() []string {
	return dw.inner.WatchedPaths()
}

func (dw *DebouncedWatcher) processLoop() {
	defer dw.closedWg.Done()

	events := dw.inner.Events()
	errs := dw.inner.Errors()
	for events != nil || errs != nil {
		select {
		case <-dw.closeCh:
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			dw.handleEvent(event)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			dw.forwardError(err)
		}
	}
}

func (dw *DebouncedWatcher) handleEvent(event Event) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if dw.closed {
		return
	}

	if p, ok := dw.pending[event.Path]; ok {
		p.event.Op |= event.Op
		p.event.Timestamp = event.Timestamp
		wait := dw.delay
		if left := dw.maxWait - time.Since(p.first); left < wait {
			wait = max(left, 0)
		}
		p.timer.Reset(wait)
		atomic.AddInt64(&dw.merged, 1)
		return
	}

	p := &pendingEvent{event: event, first: time.Now()}
	p.timer = time.AfterFunc(dw.delay, func() { dw.fireEvent(p) })
	dw.pending[event.Path] = p
}

func (dw *DebouncedWatcher) fireEvent(p *pendingEvent) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	path := p.event.Path
	if dw.closed || dw.pending[path] != p {
		return
	}
	delete(dw.pending, path)

	select {
	case dw.events <- p.event:
	default:
		atomic.AddInt64(&dw.dropped, 1)
	}
}

func (dw *DebouncedWatcher) forwardError(err error) {
	select {
	case dw.errors <- err:
	default:
	}
}

// Flush delivers every pending event immediately.
func (dw *DebouncedWatcher) Flush() {
	dw.mu.Lock()
	pending := make([]*pendingEvent, 0, len(dw.pending))
	for _, p := range dw.pending {
		p.timer.Stop()
		pending = append(pending, p)
	}
	dw.mu.Unlock()

	for _, p := range pending {
		dw.fireEvent(p)
	}
}

// PendingCount returns the number of events waiting for their quiet period.
func (dw *DebouncedWatcher) PendingCount() int {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return len(dw.pending)
}

var _ Watcher = (*DebouncedWatcher)(nil)
