// Package tree converts flat project paths into a sorted hierarchy and back.
//
// A Tree is a sequence of root-level nodes. Every sibling sequence lists
// directories before files, and each group is ordered by byte-wise
// comparison of names. Trees are values: nothing in this package mutates a
// Tree after Build returns it, and Clone gives callers a copy they may change.
package tree

import (
	"sort"
	"strings"

	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// Kind distinguishes directories from files.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindDir {
		return "directory"
	}
	return "file"
}

// Node is a directory or a file. The set of implementations is closed:
// a type switch over *Dir and *File is exhaustive.
type Node interface {
	// NodeName returns the final path segment.
	NodeName() string

	// NodePath returns the root-relative path with "/" separators.
	NodePath() string

	// NodeKind reports whether the node is a directory or a file.
	NodeKind() Kind

	node()
}

// Dir is a directory node.
type Dir struct {
	Name     string
	Path     string
	Children []Node
}

// File is a file node.
type File struct {
	Name string
	Path string
}

// NodeName returns the directory's own name.
func (d *Dir) NodeName() string { return d.Name }

// NodePath returns the directory's root-relative path.
func (d *Dir) NodePath() string { return d.Path }

// NodeKind returns KindDir.
func (d *Dir) NodeKind() Kind { return KindDir }

func (d *Dir) node() {}

// NodeName returns the file's own name.
func (f *File) NodeName() string { return f.Name }

// NodePath returns the file's root-relative path.
func (f *File) NodePath() string { return f.Path }

// NodeKind returns KindFile.
func (f *File) NodeKind() Kind { return KindFile }

func (f *File) node() {}

// Tree is an ordered sequence of root-level nodes.
type Tree struct {
	Roots []Node
}

// Build builds a tree from file paths. Every proper prefix of a path becomes
// a directory node. Duplicate paths collapse into one node.
func Build(paths []string) Tree {
	return BuildWith(paths, nil)
}

// BuildWith builds a tree from file paths plus directory paths that must
// appear even when they contain no files.
//
// A path used both as a file and as a directory prefix keeps only the
// directory: the filesystem cannot hold both at once, so such input comes
// from a listing that changed mid-pass.
func BuildWith(files, dirs []string) Tree {
	root := newBuilder("")
	for _, d := range dirs {
		segs := vfs.Split(d)
		if len(segs) == 0 {
			continue
		}
		root.insertDir(segs)
	}
	for _, f := range files {
		segs := vfs.Split(f)
		if len(segs) == 0 {
			continue
		}
		root.insertFile(segs)
	}
	return Tree{Roots: root.children()}
}

// builder is the mutable form used during insertion.
type builder struct {
	path  string
	dirs  map[string]*builder
	files map[string]bool
}

func newBuilder(p string) *builder {
	return &builder{path: p, dirs: make(map[string]*builder), files: make(map[string]bool)}
}

func (b *builder) join(name string) string {
	if b.path == "" {
		return name
	}
	return b.path + "/" + name
}

func (b *builder) dir(name string) *builder {
	child, ok := b.dirs[name]
	if !ok {
		child = newBuilder(b.join(name))
		b.dirs[name] = child
		delete(b.files, name)
	}
	return child
}

func (b *builder) insertDir(segs []string) {
	cur := b
	for _, s := range segs {
		cur = cur.dir(s)
	}
}

func (b *builder) insertFile(segs []string) {
	cur := b
	for _, s := range segs[:len(segs)-1] {
		cur = cur.dir(s)
	}
	name := segs[len(segs)-1]
	if _, isDir := cur.dirs[name]; !isDir {
		cur.files[name] = true
	}
}

// children returns the sorted child nodes. Subdirectories are finished
// before they are attached.
func (b *builder) children() []Node {
	dirNames := make([]string, 0, len(b.dirs))
	for name := range b.dirs {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)

	fileNames := make([]string, 0, len(b.files))
	for name := range b.files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	out := make([]Node, 0, len(dirNames)+len(fileNames))
	for _, name := range dirNames {
		child := b.dirs[name]
		out = append(out, &Dir{Name: name, Path: child.path, Children: child.children()})
	}
	for _, name := range fileNames {
		out = append(out, &File{Name: name, Path: b.join(name)})
	}
	return out
}

// Less reports whether a sorts before b among siblings.
func Less(a, b Node) bool {
	if a.NodeKind() != b.NodeKind() {
		return a.NodeKind() == KindDir
	}
	return a.NodeName() < b.NodeName()
}

// Sorted reports whether every sibling sequence in t is in tree order.
func (t Tree) Sorted() bool {
	return sortedNodes(t.Roots)
}

func sortedNodes(nodes []Node) bool {
	for i := 1; i < len(nodes); i++ {
		if !Less(nodes[i-1], nodes[i]) {
			return false
		}
	}
	for _, n := range nodes {
		if d, ok := n.(*Dir); ok && !sortedNodes(d.Children) {
			return false
		}
	}
	return true
}

// Len returns the number of root-level nodes.
func (t Tree) Len() int {
	return len(t.Roots)
}

// Empty reports whether the tree has no nodes.
func (t Tree) Empty() bool {
	return len(t.Roots) == 0
}

// Count returns the number of directories and files in the tree.
func (t Tree) Count() (dirs, files int) {
	t.Walk(func(n Node, _ int) bool {
		switch n.(type) {
		case *Dir:
			dirs++
		case *File:
			files++
		}
		return true
	})
	return dirs, files
}

// WalkFunc visits a node at the given depth (0 for roots). Returning false
// for a directory skips its children.
type WalkFunc func(n Node, depth int) bool

// Walk visits every node in stored pre-order.
func (t Tree) Walk(fn WalkFunc) {
	walkNodes(t.Roots, 0, fn)
}

func walkNodes(nodes []Node, depth int, fn WalkFunc) {
	for _, n := range nodes {
		if !fn(n, depth) {
			continue
		}
		if d, ok := n.(*Dir); ok {
			walkNodes(d.Children, depth+1, fn)
		}
	}
}

// Find returns the node at the root-relative path p.
func (t Tree) Find(p string) (Node, bool) {
	segs := vfs.Split(p)
	if len(segs) == 0 {
		return nil, false
	}

	nodes := t.Roots
	for i, s := range segs {
		var next Node
		for _, n := range nodes {
			if n.NodeName() == s {
				next = n
				break
			}
		}
		if next == nil {
			return nil, false
		}
		if i == len(segs)-1 {
			return next, true
		}
		d, ok := next.(*Dir)
		if !ok {
			return nil, false
		}
		nodes = d.Children
	}
	return nil, false
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	return Tree{Roots: cloneNodes(t.Roots)}
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		switch n := n.(type) {
		case *Dir:
			out[i] = &Dir{Name: n.Name, Path: n.Path, Children: cloneNodes(n.Children)}
		case *File:
			out[i] = &File{Name: n.Name, Path: n.Path}
		}
	}
	return out
}

// Equal reports whether a and b have the same structure, names and paths.
func Equal(a, b Tree) bool {
	return equalNodes(a.Roots, b.Roots)
}

func equalNodes(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		switch x := a[i].(type) {
		case *Dir:
			y, ok := b[i].(*Dir)
			if !ok || x.Name != y.Name || x.Path != y.Path || !equalNodes(x.Children, y.Children) {
				return false
			}
		case *File:
			y, ok := b[i].(*File)
			if !ok || x.Name != y.Name || x.Path != y.Path {
				return false
			}
		}
	}
	return true
}

// Flatten returns the paths of all files in stored pre-order. Directory
// paths are never included.
func Flatten(t Tree) []string {
	var out []string
	t.Walk(func(n Node, _ int) bool {
		if f, ok := n.(*File); ok {
			out = append(out, f.Path)
		}
		return true
	})
	if out == nil {
		return []string{}
	}
	return out
}

// Dirs returns the paths of all directories in stored pre-order.
func Dirs(t Tree) []string {
	var out []string
	t.Walk(func(n Node, _ int) bool {
		if d, ok := n.(*Dir); ok {
			out = append(out, d.Path)
		}
		return true
	})
	return out
}

// String renders t with Render.
func (t Tree) String() string {
	var sb strings.Builder
	_ = t.Render(&sb, RenderOptions{})
	return sb.String()
}
