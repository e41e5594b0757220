package tree

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// RenderOptions controls text rendering.
type RenderOptions struct {
	// Color highlights directory names.
	Color bool

	// DirSuffix is appended to directory names. Defaults to "/".
	DirSuffix string
}

const (
	branchMid  = "├── "
	branchLast = "└── "
	indentMid  = "│   "
	indentLast = "    "
)

// Render writes an indented view of t, one node per line.
func (t Tree) Render(w io.Writer, opts RenderOptions) error {
	if opts.DirSuffix == "" {
		opts.DirSuffix = "/"
	}
	dirColor := color.New(color.FgBlue, color.Bold)
	if opts.Color {
		dirColor.EnableColor()
	} else {
		dirColor.DisableColor()
	}
	return renderNodes(w, t.Roots, "", opts, dirColor)
}

func renderNodes(w io.Writer, nodes []Node, prefix string, opts RenderOptions, dirColor *color.Color) error {
	for i, n := range nodes {
		last := i == len(nodes)-1
		branch, indent := branchMid, indentMid
		if last {
			branch, indent = branchLast, indentLast
		}

		switch n := n.(type) {
		case *Dir:
			if _, err := fmt.Fprintf(w, "%s%s%s\n", prefix, branch, dirColor.Sprint(n.Name+opts.DirSuffix)); err != nil {
				return err
			}
			if err := renderNodes(w, n.Children, prefix+indent, opts, dirColor); err != nil {
				return err
			}
		case *File:
			if _, err := fmt.Fprintf(w, "%s%s%s\n", prefix, branch, n.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// jsonNode is the wire form of a Node.
type jsonNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     string      `json:"kind"`
	Children *[]jsonNode `json:"children,omitempty"`
}

// MarshalJSON encodes the tree as an array of root nodes. Directories carry
// a children array, which is empty rather than absent for empty directories.
func (t Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(t.Roots))
}

func toJSON(nodes []Node) []jsonNode {
	out := make([]jsonNode, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Dir:
			children := toJSON(n.Children)
			out = append(out, jsonNode{Name: n.Name, Path: n.Path, Kind: KindDir.String(), Children: &children})
		case *File:
			out = append(out, jsonNode{Name: n.Name, Path: n.Path, Kind: KindFile.String()})
		}
	}
	return out
}
