package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/project/tree"
	"github.com/eliotbyte/promptgen/internal/project/vfs"
	"github.com/eliotbyte/promptgen/internal/session"
)

// NewSelectCommand creates the 'promptgen select' command group
func NewSelectCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Edit the files included in the generated prompt",
		Long: `Manage the saved file selection for the project root. The selection is
kept per project and used by 'promptgen generate'.`,
	}

	cmd.AddCommand(newSelectAddCommand(opts))
	cmd.AddCommand(newSelectRemoveCommand(opts))
	cmd.AddCommand(newSelectListCommand(opts))
	cmd.AddCommand(newSelectClearCommand(opts))

	return cmd
}

func newSelectAddCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add path...",
		Short: "Add files or whole directories to the selection",
		Long: `Add paths to the selection. A directory adds every file beneath it that
appears in the tree. Paths the tree does not contain are rejected.

Example:
  promptgen select add internal/cmd README.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, "")
			if err != nil {
				return err
			}
			snap, err := e.scan(cmd)
			if err != nil {
				return err
			}

			var picked []string
			for _, arg := range args {
				files, err := expandSelection(snap.Tree, arg)
				if err != nil {
					return err
				}
				picked = append(picked, files...)
			}

			store, err := e.store()
			if err != nil {
				return err
			}
			var added int
			st, err := store.Update(e.root, func(st *session.State) error {
				added = st.Select(picked...)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d, %d selected\n", added, len(st.Selected))
			return nil
		},
	}
}

// expandSelection resolves arg against t to the files it names.
func expandSelection(t tree.Tree, arg string) ([]string, error) {
	rel := vfs.Normalize(arg)
	if rel == "" {
		return tree.Flatten(t), nil
	}
	n, ok := t.Find(rel)
	if !ok {
		return nil, fmt.Errorf("%s: not in the project tree (missing or ignored)", arg)
	}
	return tree.Flatten(tree.Tree{Roots: []tree.Node{n}}), nil
}

func newSelectRemoveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove path...",
		Short: "Remove files or directories from the selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, "")
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			var removed int
			st, err := store.Update(e.root, func(st *session.State) error {
				removed = st.Deselect(args...)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d, %d selected\n", removed, len(st.Selected))
			return nil
		},
	}
}

func newSelectListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the selected files",
		Long: `Print the selected files, one per line. Files that have since been
deleted or ignored are marked "(missing)".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, "")
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			st, err := store.Load(e.root)
			if err != nil {
				return err
			}
			snap, err := e.scan(cmd)
			if err != nil {
				return err
			}

			present := st
			present.Selected = append([]string(nil), st.Selected...)
			missing := present.Prune(snap.Files)

			out := cmd.OutOrStdout()
			for _, p := range st.Selected {
				if slices.Contains(missing, p) {
					fmt.Fprintf(out, "%s (missing)\n", p)
				} else {
					fmt.Fprintln(out, p)
				}
			}
			return nil
		},
	}
}

func newSelectClearCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, "")
			if err != nil {
				return err
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			_, err = store.Update(e.root, func(st *session.State) error {
				st.Clear()
				return nil
			})
			return err
		},
	}
}
