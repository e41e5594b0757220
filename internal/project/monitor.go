package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"github.com/eliotbyte/promptgen/internal/logging"
	"github.com/eliotbyte/promptgen/internal/project/discovery"
	"github.com/eliotbyte/promptgen/internal/project/watcher"
)

// DefaultDebounce is the per-path quiet period applied to filesystem
// events before they trigger a pass.
const DefaultDebounce = 100 * time.Millisecond

// maxSuperseded bounds how many finished passes in a row may be dropped
// for a newer trigger before one is delivered anyway.
const maxSuperseded = 3

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	// Scan configures every pass.
	Scan ScanOptions

	// Debounce is the per-path quiet period for filesystem events.
	// Zero means DefaultDebounce; a negative value disables debouncing.
	Debounce time.Duration

	// BufferSize is the watcher channel capacity.
	BufferSize int

	// Logger receives monitor diagnostics. Defaults to a no-op logger.
	Logger *logging.Logger

	// Watcher replaces the fsnotify watcher. The monitor takes ownership
	// and closes it.
	Watcher watcher.Watcher
}

// Subscription is a registered consumer.
type Subscription struct {
	ID uuid.UUID
	m  *Monitor
}

// Unsubscribe removes the consumer. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.m != nil {
		s.m.unsubscribe(s.ID)
	}
}

// MonitorStats describes monitor activity.
type MonitorStats struct {
	// Passes is the number of passes run to completion.
	Passes int64

	// Delivered is the number of snapshots handed to subscribers.
	Delivered int64

	// Coalesced counts triggers merged into an already pending pass.
	Coalesced int64

	// Superseded counts finished passes dropped for a newer trigger.
	Superseded int64

	// Cancelled counts passes abandoned because the monitor stopped.
	Cancelled int64

	// Failed counts passes that ended with Snapshot.Err set.
	Failed int64

	// LastError is the most recent pass failure.
	LastError error
}

type subscriber struct {
	id uuid.UUID
	fn func(Snapshot)
}

// Monitor keeps an ignore-aware view of a project root current.
type Monitor struct {
	root string
	fsys billy.Filesystem
	opts MonitorOptions
	log  *logging.Logger

	// scan runs one pass. Replaced in tests.
	scan func(ctx context.Context) (Snapshot, error)

	mu      sync.Mutex
	subs    []subscriber
	last    Snapshot
	hasLast bool
	started bool
	closed  bool
	cancel  context.CancelFunc
	watcher watcher.Watcher

	// delivering is set while subscribers run.
	delivering bool

	// trigger holds at most one pending pass request.
	trigger chan struct{}
	wg      sync.WaitGroup

	seq        uint64
	passes     int64
	delivered  int64
	coalesced  int64
	superseded int64
	cancelled  int64
	failed     int64
	lastErr    atomic.Value
}

// NewMonitor creates a monitor for root. The root must exist and be a
// directory; failures after that are reported through snapshots.
func NewMonitor(root string, opts MonitorOptions) (*Monitor, error) {
	fsys, err := OpenFS(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &RootError{Root: root, Err: err}
	}

	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Scan.ExcludeDirs == nil {
		opts.Scan.ExcludeDirs = discovery.DefaultExcludeDirs
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	m := &Monitor{
		root:    abs,
		fsys:    fsys,
		opts:    opts,
		log:     log.WithComponent("monitor").WithField("root", abs),
		trigger: make(chan struct{}, 1),
	}
	m.scan = func(ctx context.Context) (Snapshot, error) {
		return Scan(ctx, m.fsys, m.opts.Scan)
	}
	return m, nil
}

// Root returns the absolute root path.
func (m *Monitor) Root() string {
	return m.root
}

// Subscribe registers fn to receive every delivered snapshot. Each call
// gets its own copy of the tree. Subscribers run on the monitor's
// goroutine and should return promptly.
func (m *Monitor) Subscribe(fn func(Snapshot)) Subscription {
	id := uuid.New()
	m.mu.Lock()
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()
	return Subscription{ID: id, m: m}
}

func (m *Monitor) unsubscribe(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

// Start registers the filesystem watch, runs and delivers the initial
// pass, and then refreshes on every change until ctx ends or Close is
// called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrMonitorStarted
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	w, err := m.openWatcher()
	if err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = w.Close()
		return ErrMonitorClosed
	}
	m.watcher = w
	m.wg.Add(1)
	m.mu.Unlock()

	// The initial pass runs on the caller's goroutine; the loops start
	// after it so passes never overlap.
	m.log.Debug("initial pass")
	m.runPass(runCtx)

	m.wg.Add(2)
	go m.eventLoop(runCtx, w)
	go m.refreshLoop(runCtx)
	m.wg.Done()

	return nil
}

func (m *Monitor) openWatcher() (watcher.Watcher, error) {
	w := m.opts.Watcher
	if w == nil {
		fsw, err := watcher.NewFSNotifyWatcher(
			watcher.WithExcludeDirs(m.opts.Scan.ExcludeDirs),
			watcher.WithBufferSize(m.opts.BufferSize),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWatcherFailed, err)
		}
		w = fsw
		if m.opts.Debounce > 0 {
			w = watcher.NewDebouncedWatcher(fsw, m.opts.Debounce, m.opts.BufferSize)
		}
	}

	if err := w.WatchRecursive(m.root); err != nil {
		_ = w.Close()
		return nil, &PathError{Op: "watch", Path: m.root, Err: fmt.Errorf("%w: %w", ErrWatcherFailed, err)}
	}
	m.log.Debug("watching %d directories", len(w.WatchedPaths()))
	return w, nil
}

// Refresh requests a pass. If one is already pending the request merges
// into it. Refresh never blocks.
func (m *Monitor) Refresh() {
	select {
	case m.trigger <- struct{}{}:
	default:
		atomic.AddInt64(&m.coalesced, 1)
	}
}

func (m *Monitor) eventLoop(ctx context.Context, w watcher.Watcher) {
	defer m.wg.Done()

	events, errs := w.Events(), w.Errors()
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.log.Debug("%s %s", ev.Op, ev.Path)
			m.Refresh()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.log.Warn("watcher: %v", err)
			// The event that caused the error may be lost.
			m.Refresh()
		}
	}
}

func (m *Monitor) refreshLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
			m.runPass(ctx)
		}
	}
}

// runPass runs passes until one is worth delivering, then delivers it.
func (m *Monitor) runPass(ctx context.Context) {
	for dropped := 0; ; dropped++ {
		snap, err := m.scan(ctx)
		if ctx.Err() != nil {
			atomic.AddInt64(&m.cancelled, 1)
			m.log.Debug("pass abandoned")
			return
		}
		atomic.AddInt64(&m.passes, 1)

		if err != nil {
			snap.Err = err
			atomic.AddInt64(&m.failed, 1)
			m.lastErr.Store(errBox{err})
			m.log.Error("refresh failed: %v", err)
		}
		for _, e := range snap.Errors {
			m.log.Warn("skipped: %v", e)
		}

		if dropped < maxSuperseded && m.takePending() {
			atomic.AddInt64(&m.superseded, 1)
			m.log.Debug("pass superseded by a newer change")
			continue
		}

		m.deliver(snap)
		return
	}
}

// takePending consumes a pending trigger, if any.
func (m *Monitor) takePending() bool {
	select {
	case <-m.trigger:
		return true
	default:
		return false
	}
}

func (m *Monitor) deliver(snap Snapshot) {
	m.mu.Lock()
	m.seq++
	snap.Seq = m.seq
	m.last = snap
	m.hasLast = true
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.delivering = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.delivering = false
		m.mu.Unlock()
	}()

	dirs, files := snap.Tree.Count()
	m.log.WithFields(map[string]any{"seq": snap.Seq, "dirs": dirs, "files": files}).Info("tree refreshed")

	for _, s := range subs {
		if m.isClosed() {
			return
		}
		s.fn(snap.Clone())
		atomic.AddInt64(&m.delivered, 1)
	}
}

func (m *Monitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Last returns a copy of the most recently delivered snapshot.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLast {
		return Snapshot{}, false
	}
	return m.last.Clone(), true
}

// Stats returns monitor statistics.
func (m *Monitor) Stats() MonitorStats {
	s := MonitorStats{
		Passes:     atomic.LoadInt64(&m.passes),
		Delivered:  atomic.LoadInt64(&m.delivered),
		Coalesced:  atomic.LoadInt64(&m.coalesced),
		Superseded: atomic.LoadInt64(&m.superseded),
		Cancelled:  atomic.LoadInt64(&m.cancelled),
		Failed:     atomic.LoadInt64(&m.failed),
	}
	if b, ok := m.lastErr.Load().(errBox); ok {
		s.LastError = b.err
	}
	return s
}

// errBox lets atomic.Value hold errors of differing concrete types.
type errBox struct{ err error }

// Close stops watching, abandons any pass in flight, and waits for the
// monitor's goroutines. No subscriber is called after Close returns.
// It is safe to call more than once.
//
// Close may be called from a subscriber. While a delivery is in progress
// Close returns without waiting for it, the remaining subscribers of that
// delivery are skipped, and the watcher is closed once the monitor's
// goroutines have exited.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	w := m.watcher
	inDelivery := m.delivering
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if inDelivery {
		go func() {
			m.wg.Wait()
			if err := m.closeWatcher(w); err != nil {
				m.log.Warn("%v", err)
			}
		}()
		return nil
	}

	m.wg.Wait()
	return m.closeWatcher(w)
}

func (m *Monitor) closeWatcher(w watcher.Watcher) error {
	if w != nil {
		if err := w.Close(); err != nil && !errors.Is(err, watcher.ErrWatcherClosed) {
			return fmt.Errorf("close watcher: %w", err)
		}
	}
	m.log.Debug("closed")
	return nil
}
