package project

import (
	"errors"
	"fmt"

	"github.com/eliotbyte/promptgen/internal/project/discovery"
)

// Standard errors returned by the project package.
var (
	// ErrRootUnavailable indicates the root is missing or cannot be listed.
	ErrRootUnavailable = discovery.ErrRootUnavailable

	// ErrNotDirectory indicates the root is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrMonitorClosed indicates the monitor has been closed.
	ErrMonitorClosed = errors.New("monitor closed")

	// ErrMonitorStarted indicates Start was called twice.
	ErrMonitorStarted = errors.New("monitor already started")

	// ErrWatcherFailed indicates the filesystem watcher could not be set up.
	ErrWatcherFailed = errors.New("file watcher failed")
)

// PathError represents an error associated with a project path.
type PathError struct {
	Op   string // Operation that failed (read, stat, watch)
	Path string // Root-relative path
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// RootError is a failure tied to the project root as a whole.
type RootError struct {
	Root string // Root path as given
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *RootError) Error() string {
	return fmt.Sprintf("root %s: %v", e.Root, e.Err)
}

// Unwrap returns the underlying error.
func (e *RootError) Unwrap() error {
	return e.Err
}

// IsRootUnavailable reports whether err means the root could not be read.
func IsRootUnavailable(err error) bool {
	return errors.Is(err, ErrRootUnavailable)
}
