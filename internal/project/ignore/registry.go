package ignore

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// DefaultFileName is the ignore file looked up in every directory.
const DefaultFileName = ".gitignore"

// Precedence selects how RuleSets from different directories combine.
type Precedence int

const (
	// PrecedenceInnermost evaluates the deepest enclosing RuleSet first and
	// stops at the first one that matches the path, whether it excludes or
	// re-includes. Outer files are consulted only when every inner file is
	// silent, so an inner negation rescues a path an outer file excludes,
	// even when the outer file excludes one of its parent directories.
	PrecedenceInnermost Precedence = iota

	// PrecedenceLayered adds git's directory rule on top of innermost
	// resolution: a path whose parent directory is excluded stays excluded,
	// and no negation at any level can re-include it.
	PrecedenceLayered
)

// String returns the configuration name of the precedence.
func (p Precedence) String() string {
	switch p {
	case PrecedenceInnermost:
		return "innermost"
	case PrecedenceLayered:
		return "layered"
	default:
		return "unknown"
	}
}

// ParsePrecedence parses a precedence name. The empty string selects
// PrecedenceInnermost.
func ParsePrecedence(s string) (Precedence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "innermost":
		return PrecedenceInnermost, nil
	case "layered":
		return PrecedenceLayered, nil
	default:
		return 0, fmt.Errorf("unknown precedence %q (want innermost or layered)", s)
	}
}

// RegistryOptions configures registry construction.
type RegistryOptions struct {
	// FileName is the ignore file name. Defaults to DefaultFileName.
	FileName string

	// ExcludeDirs are directory names never searched for ignore files.
	ExcludeDirs []string

	// Precedence selects how nested RuleSets combine.
	Precedence Precedence

	// Workers bounds concurrent ignore file reads. Defaults to GOMAXPROCS.
	Workers int
}

func (o *RegistryOptions) applyDefaults() {
	if o.FileName == "" {
		o.FileName = DefaultFileName
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}

// FileError records an ignore file that could not be read.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("read ignore file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// FileWarning is a ParseWarning tagged with the ignore file it came from.
type FileWarning struct {
	Path string
	ParseWarning
}

// String formats the warning for logs.
func (w FileWarning) String() string {
	return w.Path + ": " + w.ParseWarning.String()
}

// Explanation describes which rule decided a path.
type Explanation struct {
	// Excluded is the final decision.
	Excluded bool

	// Dir is the owning directory of the deciding RuleSet, "" if none matched.
	Dir string

	// Rule is the deciding rule, nil if none matched.
	Rule *Rule

	// Decision is the deciding RuleSet's verdict.
	Decision Decision
}

// Registry maps owning directories to their RuleSets.
// It is immutable once built and safe for concurrent reads.
type Registry struct {
	sets       map[string]*RuleSet
	dirs       []string
	fileName   string
	precedence Precedence
	errs       []error
	warnings   []FileWarning
}

// BuildRegistry finds every ignore file under the root of fsys and loads it.
func BuildRegistry(ctx context.Context, fsys billy.Filesystem, opts RegistryOptions) (*Registry, error) {
	opts.applyDefaults()

	var files []string
	var walkErrs []error
	err := vfs.Walk(ctx, fsys, vfs.WalkOptions{
		ExcludeDirs: opts.ExcludeDirs,
		OnError: func(p string, err error) {
			walkErrs = append(walkErrs, fmt.Errorf("%s: %w", p, err))
		},
	}, func(e vfs.Entry) error {
		if !e.IsDir && !e.Symlink && e.Name == opts.FileName {
			files = append(files, e.Path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r, err := LoadRegistry(ctx, fsys, files, opts)
	if err != nil {
		return nil, err
	}
	r.errs = append(walkErrs, r.errs...)
	return r, nil
}

// LoadRegistry loads the given root-relative ignore file paths. Files are
// read concurrently; an unreadable file contributes an empty RuleSet and is
// recorded in Errors. Only context cancellation fails the load.
func LoadRegistry(ctx context.Context, fsys billy.Filesystem, files []string, opts RegistryOptions) (*Registry, error) {
	opts.applyDefaults()

	type loaded struct {
		set      *RuleSet
		warnings []ParseWarning
		err      error
	}
	results := make([]loaded, len(files))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := opts.Workers
	if workers > len(files) {
		workers = len(files)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				data, err := vfs.ReadFile(fsys, files[i])
				if err != nil {
					results[i] = loaded{set: &RuleSet{}, err: &FileError{Path: files[i], Err: err}}
					continue
				}
				set, warnings := ParseWithWarnings(data)
				results[i] = loaded{set: set, warnings: warnings}
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &Registry{
		sets:       make(map[string]*RuleSet, len(files)),
		fileName:   opts.FileName,
		precedence: opts.Precedence,
	}
	for i, f := range files {
		dir := vfs.Dir(vfs.Normalize(f))
		r.sets[dir] = results[i].set
		if results[i].err != nil {
			r.errs = append(r.errs, results[i].err)
		}
		for _, w := range results[i].warnings {
			r.warnings = append(r.warnings, FileWarning{Path: f, ParseWarning: w})
		}
	}

	r.dirs = make([]string, 0, len(r.sets))
	for d := range r.sets {
		r.dirs = append(r.dirs, d)
	}
	sort.Strings(r.dirs)

	return r, nil
}

// NewRegistry builds a registry from in-memory RuleSets keyed by owning
// directory ("." for the root).
func NewRegistry(sets map[string]*RuleSet, precedence Precedence) *Registry {
	r := &Registry{
		sets:       make(map[string]*RuleSet, len(sets)),
		fileName:   DefaultFileName,
		precedence: precedence,
	}
	for d, s := range sets {
		d = vfs.Normalize(d)
		if d == "" {
			d = vfs.RootDir
		}
		r.sets[d] = s
		r.dirs = append(r.dirs, d)
	}
	sort.Strings(r.dirs)
	return r
}

// Excluded reports whether the root-relative path is excluded.
// A path with no applicable RuleSet is never excluded.
func (r *Registry) Excluded(relPath string, isDir bool) bool {
	return r.Explain(relPath, isDir).Excluded
}

// Explain resolves relPath against the chain of enclosing RuleSets and
// reports which one decided.
func (r *Registry) Explain(relPath string, isDir bool) Explanation {
	if r == nil || len(r.sets) == 0 {
		return Explanation{}
	}

	segments := vfs.Split(relPath)
	if len(segments) == 0 {
		return Explanation{}
	}

	if r.precedence == PrecedenceLayered {
		for k := 1; k < len(segments); k++ {
			if e := r.resolve(segments[:k], true); e.Excluded {
				return e
			}
		}
	}
	return r.resolve(segments, isDir)
}

// resolve walks the enclosing directories of segments from the deepest to
// the root and returns the first definitive decision.
func (r *Registry) resolve(segments []string, isDir bool) Explanation {
	// Enclosing directory i owns segments[:i]; i == 0 is the root.
	for i := len(segments) - 1; i >= 0; i-- {
		dir := vfs.RootDir
		if i > 0 {
			dir = strings.Join(segments[:i], "/")
		}
		set, ok := r.sets[dir]
		if !ok {
			continue
		}
		d, rule := set.Explain(strings.Join(segments[i:], "/"), isDir)
		if d == NoMatch {
			continue
		}
		return Explanation{Excluded: d == Exclude, Dir: dir, Rule: rule, Decision: d}
	}
	return Explanation{}
}

// RuleSet returns the RuleSet owned by dir ("." for the root).
func (r *Registry) RuleSet(dir string) (*RuleSet, bool) {
	if r == nil {
		return nil, false
	}
	dir = vfs.Normalize(dir)
	if dir == "" {
		dir = vfs.RootDir
	}
	s, ok := r.sets[dir]
	return s, ok
}

// Dirs returns the owning directories in sorted order.
func (r *Registry) Dirs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.dirs))
	copy(out, r.dirs)
	return out
}

// Len returns the number of registered RuleSets.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sets)
}

// FileName returns the ignore file name this registry was built for.
func (r *Registry) FileName() string {
	if r == nil {
		return DefaultFileName
	}
	return r.fileName
}

// Precedence returns the configured precedence.
func (r *Registry) Precedence() Precedence {
	if r == nil {
		return PrecedenceInnermost
	}
	return r.precedence
}

// Errors returns failures met while loading ignore files.
func (r *Registry) Errors() []error {
	if r == nil {
		return nil
	}
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Warnings returns malformed lines skipped while parsing.
func (r *Registry) Warnings() []FileWarning {
	if r == nil {
		return nil
	}
	out := make([]FileWarning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
