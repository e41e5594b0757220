package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/session"
)

// NewNotesCommand creates the 'promptgen notes' command group
func NewNotesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Edit the text placed before the files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [text...]",
		Short: "Replace the notes",
		Long: `Replace the saved notes with the arguments joined by spaces. With a
single "-" argument the notes are read from standard input. With no
arguments the notes are cleared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, "")
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if len(args) == 1 && args[0] == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read notes: %w", err)
				}
				text = strings.TrimRight(string(data), "\n")
			}
			store, err := e.store()
			if err != nil {
				return err
			}
			_, err = store.Update(e.root, func(st *session.State) error {
				st.Notes = text
				return nil
			})
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the notes",
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
			st, err := store.Load(e.root)
			if err != nil {
				return err
			}
			if st.Notes != "" {
				fmt.Fprintln(cmd.OutOrStdout(), st.Notes)
			}
			return nil
		},
	})

	return cmd
}
