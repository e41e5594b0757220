package cmd

import (
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/project"
	"github.com/eliotbyte/promptgen/internal/project/ignore"
	"github.com/eliotbyte/promptgen/internal/project/vfs"
)

// NewCheckIgnoreCommand creates the 'promptgen check-ignore' command
func NewCheckIgnoreCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-ignore path...",
		Short: "Show which ignore rule decides each path",
		Long: `For each path, print the ignore file, line and pattern that decided it,
followed by a tab and the path. Paths no rule matches print "::". Negated
patterns that re-include a path are shown as well.

Paths are relative to the project root. A trailing slash marks a directory;
otherwise the path is looked up on disk.

Example:
  promptgen check-ignore --root ~/src/app build/out.js vendor/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, "")
			if err != nil {
				return err
			}
			return runCheckIgnore(cmd, e, args)
		},
	}
}

func runCheckIgnore(cmd *cobra.Command, e *env, args []string) error {
	fsys, err := project.OpenFS(e.root)
	if err != nil {
		return err
	}
	scan := e.cfg.ScanOptions()
	reg, err := ignore.BuildRegistry(cmd.Context(), fsys, ignore.RegistryOptions{
		FileName:    scan.IgnoreFile,
		ExcludeDirs: scan.ExcludeDirs,
		Precedence:  scan.Precedence,
		Workers:     scan.Workers,
	})
	if err != nil {
		return err
	}
	for _, w := range reg.Warnings() {
		e.log.Warn("%s", w)
	}
	for _, loadErr := range reg.Errors() {
		e.log.Warn("%v", loadErr)
	}

	out := cmd.OutOrStdout()
	for _, arg := range args {
		rel := vfs.Normalize(arg)
		if rel == "" {
			return fmt.Errorf("%s: the root itself cannot be ignored", arg)
		}
		isDir := strings.HasSuffix(arg, "/")
		if !isDir {
			if info, err := fsys.Stat(vfs.FromSlash(fsys, rel)); err == nil {
				isDir = info.IsDir()
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", arg, err)
			}
		}

		if name, ok := excludedSegment(rel, isDir, scan.ExcludeDirs); ok {
			fmt.Fprintf(out, "(excluded directory %s)\t%s\n", name, arg)
			continue
		}

		ex := reg.Explain(rel, isDir)
		if ex.Rule == nil {
			fmt.Fprintf(out, "::\t%s\n", arg)
			continue
		}
		source := path.Join(ex.Dir, reg.FileName())
		fmt.Fprintf(out, "%s:%d:%s\t%s\n", source, ex.Rule.Line, ex.Rule.Text, arg)
	}
	return nil
}

// excludedSegment reports the first directory of rel that discovery never
// enters.
func excludedSegment(rel string, isDir bool, excludes []string) (string, bool) {
	segs := vfs.Split(rel)
	if !isDir {
		segs = segs[:len(segs)-1]
	}
	for _, s := range segs {
		if slices.Contains(excludes, s) {
			return s, true
		}
	}
	return "", false
}
