package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeCommand(t *testing.T) {
	h := newHarness(t, map[string]string{
		"a.txt":          "a",
		"dir/b.txt":      "b",
		"dir/.gitignore": "b.txt\n",
		"node_modules/x": "x",
	})

	out := h.mustRun("tree")
	assert.Equal(t, "├── dir/\n└── a.txt\n", out)
}

func TestTreeCommand_PositionalRoot(t *testing.T) {
	h := newHarness(t, nil)
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "z.go"), nil, 0o644))

	out := h.mustRun("tree", other)
	assert.Equal(t, "└── z.go\n", out)
}

func TestTreeCommand_JSON(t *testing.T) {
	h := newHarness(t, map[string]string{"src/main.go": ""})

	out := h.mustRun("tree", "--json")

	var nodes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "src", nodes[0]["name"])
	assert.Equal(t, "directory", nodes[0]["kind"])
}

func TestTreeCommand_MissingRoot(t *testing.T) {
	h := newHarness(t, nil)

	_, _, err := h.run("tree", filepath.Join(h.root, "nope"))
	assert.ErrorContains(t, err, "root unavailable")
}

func TestManifestCommand(t *testing.T) {
	h := newHarness(t, map[string]string{
		".gitignore":  "*.log\n",
		"z.go":        "",
		"a.log":       "",
		"pkg/x/y.go":  "",
		"pkg/util.go": "",
	})

	out := h.mustRun("manifest")
	assert.Equal(t, "pkg/x/y.go\npkg/util.go\nz.go\n", out)
}

func TestCheckIgnoreCommand(t *testing.T) {
	h := newHarness(t, map[string]string{
		".gitignore":     "*.log\n!keep.log\n",
		"sub/.gitignore": "tmp/\n",
		"a.log":          "",
		"keep.log":       "",
		"main.go":        "",
		"sub/tmp/x":      "",
	})

	out := h.mustRun("check-ignore", "a.log", "keep.log", "main.go", "sub/tmp", "node_modules/p/index.js")

	want := strings.Join([]string{
		".gitignore:1:*.log\ta.log",
		".gitignore:2:!keep.log\tkeep.log",
		"::\tmain.go",
		"sub/.gitignore:1:tmp/\tsub/tmp",
		"(excluded directory node_modules)\tnode_modules/p/index.js",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestSelectAndGenerate(t *testing.T) {
	h := newHarness(t, map[string]string{
		".gitignore":   "*.log\n",
		"a.go":         "package a",
		"pkg/b.go":     "package b",
		"pkg/c.go":     "package c",
		"debug.log":    "noise",
		"README.md":    "readme",
		"pkg/.keep.md": "",
	})

	out := h.mustRun("select", "add", "pkg", "a.go")
	assert.Equal(t, "added 4, 4 selected\n", out)

	_, _, err := h.run("select", "add", "debug.log")
	assert.ErrorContains(t, err, "not in the project tree")

	h.mustRun("select", "remove", "pkg/.keep.md")
	assert.Equal(t, "a.go\npkg/b.go\npkg/c.go\n", h.mustRun("select", "list"))

	h.mustRun("notes", "set", "Review", "these")
	assert.Equal(t, "Review these\n", h.mustRun("notes", "show"))

	out = h.mustRun("generate", "--no-structure")
	want := "Review these\n\n" +
		"--- a.go ---\npackage a\n\n" +
		"--- pkg/b.go ---\npackage b\n\n" +
		"--- pkg/c.go ---\npackage c\n\n"
	assert.Equal(t, want, out)

	out = h.mustRun("generate")
	assert.Contains(t, out, "--- structure ---\npkg/.keep.md\npkg/b.go\npkg/c.go\nREADME.md\na.go\n\n")

	h.mustRun("select", "clear")
	assert.Empty(t, h.mustRun("select", "list"))
}

func TestGenerate_PrunesVanishedFiles(t *testing.T) {
	h := newHarness(t, map[string]string{"a.go": "a", "b.go": "b"})
	h.mustRun("select", "add", "a.go", "b.go")

	require.NoError(t, os.Remove(filepath.Join(h.root, "b.go")))
	assert.Equal(t, "a.go\nb.go (missing)\n", h.mustRun("select", "list"))

	outPath := filepath.Join(t.TempDir(), "prompt.txt")
	_, stderr, err := h.run("generate", "--no-structure", "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "dropped from selection: b.go")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "\n\n--- a.go ---\na\n\n", string(data))
	assert.Equal(t, "a.go\n", h.mustRun("select", "list"))
}

func TestNotesFromStdin(t *testing.T) {
	h := newHarness(t, nil)

	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader("line one\nline two\n"))
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"--root", h.root, "--state-dir", h.stateDir, "notes", "set", "-"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "line one\nline two\n", h.mustRun("notes", "show"))
}

// syncBuffer is written by the monitor goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch(t *testing.T) {
	h := newHarness(t, map[string]string{"a.txt": ""})
	t.Setenv("PROMPTGEN_DEBOUNCE_MS", "10")

	out := &syncBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))

	opts := &globalOptions{root: h.root, stateDir: h.stateDir}
	e, err := opts.setup(cmd, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, cmd, e) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "# 1: 0 directories, 1 files\n└── a.txt\n")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(h.root, "b.txt"), nil, 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "├── a.txt\n└── b.txt\n")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
