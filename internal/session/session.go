// Package session persists what a user has picked for a project between
// invocations: the selected files and free-form notes.
package session

import (
	"path"
	"slices"
	"sort"
	"time"

	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// State is the saved session for one project root.
type State struct {
	// Root is the absolute project root the state belongs to.
	Root string `yaml:"root"`

	// Selected are root-relative slash paths, sorted and unique.
	Selected []string `yaml:"selected"`

	// Notes is free text written before the file contents.
	Notes string `yaml:"notes,omitempty"`

	// UpdatedAt is set by Store on every save.
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Select adds paths to the selection. It reports how many were new.
func (s *State) Select(paths ...string) int {
	added := 0
	for _, p := range paths {
		p = vfs.Normalize(p)
		if p == "" || slices.Contains(s.Selected, p) {
			continue
		}
		s.Selected = append(s.Selected, p)
		added++
	}
	sort.Strings(s.Selected)
	return added
}

// Deselect removes paths from the selection. A path that names a
// directory also removes everything beneath it. It reports how many
// entries were removed.
func (s *State) Deselect(paths ...string) int {
	before := len(s.Selected)
	for _, p := range paths {
		p = vfs.Normalize(p)
		s.Selected = slices.DeleteFunc(s.Selected, func(sel string) bool {
			return p == "" || sel == p || isUnder(sel, p)
		})
	}
	return before - len(s.Selected)
}

// IsSelected reports whether p is selected.
func (s *State) IsSelected(p string) bool {
	_, ok := slices.BinarySearch(s.Selected, vfs.Normalize(p))
	return ok
}

// Clear empties the selection.
func (s *State) Clear() {
	s.Selected = nil
}

// Prune drops selections that are not among files, which must be sorted.
// It returns the dropped paths.
func (s *State) Prune(files []string) []string {
	var dropped []string
	kept := s.Selected[:0]
	for _, p := range s.Selected {
		if _, ok := slices.BinarySearch(files, p); ok {
			kept = append(kept, p)
		} else {
			dropped = append(dropped, p)
		}
	}
	s.Selected = kept
	return dropped
}

func isUnder(p, dir string) bool {
	for d := path.Dir(p); d != vfs.RootDir; d = path.Dir(d) {
		if d == dir {
			return true
		}
	}
	return false
}
