package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/eliotbyte/promptgen/internal/project/discovery"
	"github.com/eliotbyte/promptgen/internal/project/tree"
	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// ScanOptions configures a scan pass.
type ScanOptions = discovery.Options

// Snapshot is the result of one scan pass.
type Snapshot struct {
	// Seq numbers the snapshots a Monitor delivers, starting at 1. Zero for Scan.
	Seq uint64

	// At is when the pass finished.
	At time.Time

	// Tree is the sorted view of every surviving file and directory.
	Tree tree.Tree

	// Files are the surviving files in lexical order.
	Files []string

	// Errors are per-entry failures the pass skipped over.
	Errors []error

	// Err is set when the pass failed as a whole. Tree is then empty.
	Err error
}

// Clone returns a copy of s that shares no mutable state with it.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Tree = s.Tree.Clone()
	if s.Files != nil {
		out.Files = append([]string(nil), s.Files...)
	}
	if s.Errors != nil {
		out.Errors = append([]error(nil), s.Errors...)
	}
	return out
}

// OpenFS returns a filesystem rooted at root. The root must exist and be a
// directory.
func OpenFS(root string) (billy.Filesystem, error) {
	fsys, err := vfs.OS(root)
	switch {
	case err == nil:
		return fsys, nil
	case errors.Is(err, vfs.ErrRootNotDir):
		return nil, &RootError{Root: root, Err: fmt.Errorf("%w: %w", ErrNotDirectory, err)}
	default:
		return nil, &RootError{Root: root, Err: fmt.Errorf("%w: %w", ErrRootUnavailable, err)}
	}
}

// Scan runs one discovery pass over fsys and builds its tree.
//
// A root that cannot be listed yields an empty Snapshot with Err set; the
// same error is returned. A cancelled context returns ctx.Err() and a zero
// Snapshot, which must not be shown to anyone.
func Scan(ctx context.Context, fsys billy.Filesystem, opts ScanOptions) (Snapshot, error) {
	res, err := discovery.Discover(ctx, fsys, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Snapshot{}, ctxErr
		}
		snap := Snapshot{At: time.Now(), Tree: tree.Tree{Roots: []tree.Node{}}, Files: []string{}, Err: err}
		return snap, err
	}

	return Snapshot{
		At:     time.Now(),
		Tree:   tree.BuildWith(res.Files, res.Dirs),
		Files:  res.Files,
		Errors: res.Errors,
	}, nil
}
