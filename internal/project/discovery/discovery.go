// Package discovery enumerates the files under a project root that survive
// the project's ignore files.
//
// A pass walks the root once. The walk collects candidate files, candidate
// directories and ignore files together; the ignore files are then loaded
// into a registry, and only once the registry is complete are the candidates
// filtered against it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/eliotbyte/promptgen/internal/project/ignore"
	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// ErrRootUnavailable is returned when the root cannot be listed.
var ErrRootUnavailable = errors.New("root unavailable")

// DefaultExcludeDirs are the infrastructure directories skipped at any depth.
var DefaultExcludeDirs = []string{"node_modules", ".git"}

// Options configures a discovery pass.
type Options struct {
	// ExcludeDirs are directory names never descended into, at any depth.
	// Nil means DefaultExcludeDirs; an empty non-nil slice excludes nothing.
	ExcludeDirs []string

	// IgnoreFile is the ignore file name. Defaults to ".gitignore".
	IgnoreFile string

	// Precedence selects how nested ignore files combine.
	Precedence ignore.Precedence

	// IncludeIgnoreFiles keeps the ignore files themselves in Files.
	IncludeIgnoreFiles bool

	// Workers bounds concurrent ignore file reads.
	Workers int
}

func (o *Options) applyDefaults() {
	if o.ExcludeDirs == nil {
		o.ExcludeDirs = DefaultExcludeDirs
	}
	if o.IgnoreFile == "" {
		o.IgnoreFile = ignore.DefaultFileName
	}
}

// Result is the outcome of one discovery pass.
type Result struct {
	// Files are the surviving files, root-relative with "/" separators,
	// sorted lexically.
	Files []string

	// Dirs are the surviving directories, including ones left empty after
	// filtering, sorted lexically.
	Dirs []string

	// Errors are per-entry failures that were skipped.
	Errors []error

	// Registry is the ignore rule registry the pass filtered with.
	Registry *ignore.Registry
}

// EntryError records a filesystem entry that could not be read.
type EntryError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// Discover runs one discovery pass over fsys.
//
// Unreadable entries and ignore files are skipped and reported in
// Result.Errors. If the root itself cannot be listed, Discover returns an
// empty Result together with an error wrapping ErrRootUnavailable. A
// cancelled context aborts the pass with ctx.Err() and no Result.
func Discover(ctx context.Context, fsys billy.Filesystem, opts Options) (*Result, error) {
	opts.applyDefaults()

	var (
		files       []string
		dirs        []string
		ignoreFiles []string
		errs        []error
	)

	err := vfs.Walk(ctx, fsys, vfs.WalkOptions{
		ExcludeDirs: opts.ExcludeDirs,
		OnError: func(p string, err error) {
			errs = append(errs, &EntryError{Path: p, Err: err})
		},
	}, func(e vfs.Entry) error {
		switch {
		case e.IsDir:
			dirs = append(dirs, e.Path)
		case e.Name == opts.IgnoreFile && !e.Symlink:
			ignoreFiles = append(ignoreFiles, e.Path)
			if opts.IncludeIgnoreFiles {
				files = append(files, e.Path)
			}
		default:
			files = append(files, e.Path)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return &Result{}, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}

	registry, err := ignore.LoadRegistry(ctx, fsys, ignoreFiles, ignore.RegistryOptions{
		FileName:    opts.IgnoreFile,
		ExcludeDirs: opts.ExcludeDirs,
		Precedence:  opts.Precedence,
		Workers:     opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	errs = append(errs, registry.Errors()...)

	res := &Result{
		Files:    filter(files, registry, false),
		Dirs:     filter(dirs, registry, true),
		Errors:   errs,
		Registry: registry,
	}
	return res, nil
}

func filter(paths []string, registry *ignore.Registry, isDir bool) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !registry.Excluded(p, isDir) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
