// Package vfs provides the filesystem view the project scanner reads from.
//
// The scanner never touches the os package directly. It reads through a
// billy.Filesystem rooted at the project directory, so every path it handles
// is already root-relative, and tests can swap in an in-memory filesystem.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Common errors returned by vfs operations.
var (
	ErrRootNotExist = errors.New("root does not exist")
	ErrRootNotDir   = errors.New("root is not a directory")
)

// RootDir is the root-relative name of the root directory itself.
const RootDir = "."

// OS returns a filesystem rooted at root on the host filesystem.
// The root must exist and be a directory.
func OS(root string) (billy.Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", abs, ErrRootNotExist)
		}
		return nil, fmt.Errorf("stat root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrRootNotDir)
	}

	return osfs.New(abs), nil
}

// Memory returns an empty in-memory filesystem.
func Memory() billy.Filesystem {
	return memfs.New()
}

// ReadFile reads the whole file at the root-relative slash path p.
func ReadFile(fsys billy.Filesystem, p string) ([]byte, error) {
	return util.ReadFile(fsys, FromSlash(fsys, p))
}

// WriteFile writes data to the root-relative slash path p, creating parent
// directories as needed. Only tests and fixtures write through vfs.
func WriteFile(fsys billy.Filesystem, p string, data []byte) error {
	native := FromSlash(fsys, p)
	if dir := path.Dir(p); dir != RootDir {
		if err := fsys.MkdirAll(FromSlash(fsys, dir), 0o755); err != nil {
			return err
		}
	}
	return util.WriteFile(fsys, native, data, 0o644)
}

// FromSlash converts a root-relative slash path into the filesystem's own
// path form. The root itself maps to the empty string.
func FromSlash(fsys billy.Filesystem, p string) string {
	if p == "" || p == RootDir {
		return ""
	}
	return fsys.Join(strings.Split(p, "/")...)
}

// Normalize converts p into a root-relative slash path: separators become
// "/", consecutive slashes collapse, and leading "./" and surrounding
// slashes are removed. The empty path and "." both normalize to "".
func Normalize(p string) string {
	p = filepath.ToSlash(p)
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.Trim(p, "/")
	if p == RootDir {
		return ""
	}
	return p
}

// Split returns the segments of a root-relative slash path.
// The root yields no segments.
func Split(p string) []string {
	p = Normalize(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Dir returns the parent of a root-relative slash path, "." for top-level entries.
func Dir(p string) string {
	d := path.Dir(p)
	if d == "" {
		return RootDir
	}
	return d
}

// Rel returns target relative to the directory dir, both root-relative slash
// paths. dir "." is the root. ok is false when target is not inside dir.
func Rel(dir, target string) (rel string, ok bool) {
	if dir == "" || dir == RootDir {
		return target, true
	}
	if !strings.HasPrefix(target, dir+"/") {
		return "", false
	}
	return target[len(dir)+1:], true
}
