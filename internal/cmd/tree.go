package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/project/tree"
)

// NewTreeCommand creates the 'promptgen tree' command
func NewTreeCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tree [root]",
		Short: "Print the ignore-aware project tree",
		Long: `Print every file and directory under the project root that no ignore
file excludes. Directories come first, then files, each group sorted by name.

Examples:
  promptgen tree
  promptgen tree ~/src/app --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, firstArg(args))
			if err != nil {
				return err
			}
			snap, err := e.scan(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Tree)
			}
			return snap.Tree.Render(out, tree.RenderOptions{Color: colorEnabled(out)})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tree as JSON")

	return cmd
}

// NewManifestCommand creates the 'promptgen manifest' command
func NewManifestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest [root]",
		Short: "List the project's files, one path per line",
		Long: `List every file in the ignore-aware tree as a root-relative path, in the
same order the tree shows them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, firstArg(args))
			if err != nil {
				return err
			}
			snap, err := e.scan(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range tree.Flatten(snap.Tree) {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}
