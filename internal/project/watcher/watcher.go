// Package watcher reports filesystem changes below a project root.
//
// FSNotifyWatcher wraps fsnotify with recursive directory registration,
// automatic registration of directories created later, and name-based
// exclusion of infrastructure directories: nothing inside an excluded
// directory is watched, and no event is reported for paths inside one.
// DebouncedWatcher collapses bursts of events on the same path.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrWatchLimit      = errors.New("maximum watch limit reached")
)

// Op is a bitmask of filesystem operations.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed away.
	OpRename
	// OpChmod indicates permissions changed.
	OpChmod
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "CREATE"},
	{OpWrite, "WRITE"},
	{OpRemove, "REMOVE"},
	{OpRename, "RENAME"},
	{OpChmod, "CHMOD"},
}

// String returns the names of the set bits joined by "|".
func (op Op) String() string {
	if op == 0 {
		return "NONE"
	}
	s := ""
	for _, n := range opNames {
		if op.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// Has reports whether op includes every bit of o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a filesystem change.
type Event struct {
	// Path is the absolute path of the affected entry.
	Path string

	// Op is the set of operations observed.
	Op Op

	// Timestamp is when the event was received.
	Timestamp time.Time
}

// Stats describes watcher activity.
type Stats struct {
	// WatchedPaths is the number of registered directories.
	WatchedPaths int

	// PendingEvents is the number of events not yet delivered.
	PendingEvents int

	// TotalEvents is the number of events delivered.
	TotalEvents int64

	// DroppedEvents is the number of events dropped on a full channel.
	DroppedEvents int64

	// Errors is the number of errors encountered.
	Errors int64

	// LastError is the most recent error, if any.
	LastError error

	// StartTime is when the watcher was created.
	StartTime time.Time
}

// Watcher reports filesystem changes.
type Watcher interface {
	// Watch registers a single path.
	// Returns ErrAlreadyWatching if the path is already registered.
	Watch(path string) error

	// WatchRecursive registers a directory and every subdirectory that is
	// not excluded. Directories created later are registered automatically.
	WatchRecursive(path string) error

	// Unwatch removes a registered path.
	Unwatch(path string) error

	// Events returns the event channel. It is closed by Close.
	Events() <-chan Event

	// Errors returns the error channel. It is closed by Close.
	Errors() <-chan error

	// Close stops the watcher. It is safe to call more than once.
	Close() error

	// Stats returns watcher statistics.
	Stats() Stats

	// IsWatching reports whether path is registered.
	IsWatching(path string) bool

	// WatchedPaths returns every registered path.
	WatchedPaths() []string
}

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

// Config holds watcher options.
type Config struct {
	// DebounceDelay is the per-path quiet period used by DebouncedWatcher.
	// Default: 100ms
	DebounceDelay time.Duration

	// BufferSize is the capacity of the event and error channels.
	// Default: 100
	BufferSize int

	// ExcludeDirs are directory names never watched and never reported,
	// at any depth below a recursive root.
	ExcludeDirs []string

	// MaxWatches bounds the number of registered paths. 0 means unlimited.
	MaxWatches int

	// EventFilter drops events it returns false for.
	EventFilter EventFilter
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		BufferSize:    100,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounceDelay sets the debounce delay.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *Config) {
		c.DebounceDelay = d
	}
}

// WithBufferSize sets the channel capacity.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithExcludeDirs sets the excluded directory names.
func WithExcludeDirs(names []string) Option {
	return func(c *Config) {
		c.ExcludeDirs = names
	}
}

// WithMaxWatches sets the watch limit.
func WithMaxWatches(max int) Option {
	return func(c *Config) {
		c.MaxWatches = max
	}
}

// WithEventFilter sets the event filter.
func WithEventFilter(filter EventFilter) Option {
	return func(c *Config) {
		c.EventFilter = filter
	}
}
