package vfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
)

// Entry is one filesystem entry visited by Walk.
type Entry struct {
	// Path is root-relative with "/" separators.
	Path string

	// Name is the final path segment.
	Name string

	// IsDir is true for directories. Symlinks to directories are reported
	// as non-directories with Symlink set and are never descended into.
	IsDir bool

	// Symlink is true when the entry is a symbolic link.
	Symlink bool
}

// WalkFunc is called for every entry below the root, parents before children.
// Returning SkipDir for a directory skips its contents; for a file it is a
// no-op. Any other error aborts the walk.
type WalkFunc func(e Entry) error

// ErrorFunc receives per-entry failures. The entry is skipped and the walk
// continues.
type ErrorFunc func(p string, err error)

// SkipDir skips the directory passed to WalkFunc.
var SkipDir = errors.New("skip this directory")

// WalkOptions configures Walk.
type WalkOptions struct {
	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string

	// OnError is called for entries that cannot be read. May be nil.
	OnError ErrorFunc
}

// Walk visits every entry under the root of fsys in lexical order per
// directory. A failure to list the root itself is returned; failures below
// the root go to opts.OnError. Excluded directories are never reported.
func Walk(ctx context.Context, fsys billy.Filesystem, opts WalkOptions, fn WalkFunc) error {
	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	onError := opts.OnError
	if onError == nil {
		onError = func(string, error) {}
	}

	w := &walker{fsys: fsys, excluded: excluded, onError: onError, fn: fn}

	infos, err := fsys.ReadDir("")
	if err != nil {
		return fmt.Errorf("read root: %w", err)
	}
	return w.walkEntries(ctx, "", infos)
}

type walker struct {
	fsys     billy.Filesystem
	excluded map[string]bool
	onError  ErrorFunc
	fn       WalkFunc
}

func (w *walker) walkDir(ctx context.Context, dir string) error {
	infos, err := w.fsys.ReadDir(FromSlash(w.fsys, dir))
	if err != nil {
		w.onError(dir, err)
		return nil
	}
	return w.walkEntries(ctx, dir, infos)
}

func (w *walker) walkEntries(ctx context.Context, dir string, infos []os.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." || name == "/" {
			continue
		}
		rel := name
		if dir != "" {
			rel = path.Join(dir, name)
		}

		e := Entry{Path: rel, Name: name, IsDir: info.IsDir()}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := w.fsys.Stat(FromSlash(w.fsys, rel))
			if err != nil {
				w.onError(rel, err)
				continue
			}
			if target.IsDir() {
				// Directory symlinks are not followed; they could loop.
				continue
			}
			e.Symlink = true
			e.IsDir = false
		}

		if e.IsDir && w.excluded[name] {
			continue
		}

		err := w.fn(e)
		if err != nil {
			if errors.Is(err, SkipDir) {
				continue
			}
			return err
		}

		if e.IsDir {
			if err := w.walkDir(ctx, rel); err != nil {
				return err
			}
		}
	}
	return nil
}
