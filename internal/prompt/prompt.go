// Package prompt assembles the text artifact handed to a language model:
// free-form notes, an optional project manifest, and the contents of the
// selected files.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// StructureHeader opens the manifest section.
const StructureHeader = "--- structure ---"

// ReadErrorMarker replaces the content of a file that could not be read.
const ReadErrorMarker = "[unreadable: %v]"

// Request describes one artifact.
type Request struct {
	// Notes is written first, verbatim.
	Notes string

	// Files are the selected paths, relative to the root, in output order.
	Files []string

	// Manifest lists the project's files. Empty omits the structure section.
	Manifest []string

	// Workers bounds concurrent file reads. Defaults to GOMAXPROCS.
	Workers int
}

// FileError reports a selected file that could not be read.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// FileErrors returns every *FileError joined into err.
func FileErrors(err error) []*FileError {
	if err == nil {
		return nil
	}
	var out []*FileError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, FileErrors(e)...)
		}
		return out
	}
	var fe *FileError
	if errors.As(err, &fe) {
		out = append(out, fe)
	}
	return out
}

type section struct {
	content string
	err     error
}

// Assemble builds the artifact for req, reading files from fsys.
//
// Every selected file gets a section even if it cannot be read; such files
// carry ReadErrorMarker and are reported as *FileError values joined into
// the returned error. The text is complete in that case. A cancelled
// context returns ctx.Err() and no text.
func Assemble(ctx context.Context, fsys billy.Filesystem, req Request) (string, error) {
	sections := readAll(ctx, fsys, req.Files, req.Workers)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(req.Notes)
	b.WriteString("\n\n")

	if len(req.Manifest) > 0 {
		b.WriteString(StructureHeader)
		b.WriteByte('\n')
		for _, p := range req.Manifest {
			b.WriteString(p)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	var errs []error
	for i, p := range req.Files {
		s := sections[i]
		fmt.Fprintf(&b, "--- %s ---\n", p)
		if s.err != nil {
			fmt.Fprintf(&b, ReadErrorMarker, s.err)
			errs = append(errs, &FileError{Path: p, Err: s.err})
		} else {
			b.WriteString(s.content)
		}
		b.WriteString("\n\n")
	}

	return b.String(), errors.Join(errs...)
}

func readAll(ctx context.Context, fsys billy.Filesystem, files []string, workers int) []section {
	out := make([]section, len(files))
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, p := range files {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return out
		}
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = readOne(fsys, p)
		}(i, p)
	}
	wg.Wait()
	return out
}

func readOne(fsys billy.Filesystem, p string) section {
	info, err := fsys.Stat(vfs.FromSlash(fsys, p))
	if err != nil {
		return section{err: err}
	}
	if info.IsDir() {
		return section{err: errors.New("is a directory")}
	}
	data, err := vfs.ReadFile(fsys, p)
	if err != nil {
		return section{err: err}
	}
	return section{content: string(data)}
}
