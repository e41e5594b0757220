package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/project"
	"github.com/eliotbyte/promptgen/internal/project/tree"
	"github.com/eliotbyte/promptgen/internal/prompt"
	"github.com/eliotbyte/promptgen/internal/session"
)

// NewGenerateCommand creates the 'promptgen generate' command
func NewGenerateCommand(opts *globalOptions) *cobra.Command {
	var (
		outPath     string
		noStructure bool
	)

	cmd := &cobra.Command{
		Use:   "generate [root]",
		Short: "Assemble the prompt from the saved notes and selection",
		Long: `Write the saved notes, the project manifest and the contents of every
selected file as one prompt. Selected files that have since been deleted or
ignored are dropped from the selection with a warning.

Examples:
  promptgen generate
  promptgen generate --no-structure -o prompt.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, firstArg(args))
			if err != nil {
				return err
			}
			structure := e.cfg.Output.Structure && !noStructure
			return runGenerate(cmd, e, outPath, structure)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the prompt to a file instead of stdout")
	cmd.Flags().BoolVar(&noStructure, "no-structure", false, "Leave out the project manifest")

	return cmd
}

func runGenerate(cmd *cobra.Command, e *env, outPath string, structure bool) error {
	fsys, err := project.OpenFS(e.root)
	if err != nil {
		return err
	}
	snap, err := project.Scan(cmd.Context(), fsys, e.cfg.ScanOptions())
	if err != nil {
		return err
	}
	for _, skipped := range snap.Errors {
		e.log.Warn("skipped: %v", skipped)
	}

	store, err := e.store()
	if err != nil {
		return err
	}
	st, err := store.Update(e.root, func(st *session.State) error {
		for _, p := range st.Prune(snap.Files) {
			e.log.Warn("dropped from selection: %s", p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	req := prompt.Request{
		Notes:   st.Notes,
		Files:   st.Selected,
		Workers: e.cfg.Scan.Workers,
	}
	if structure {
		req.Manifest = tree.Flatten(snap.Tree)
	}
	text, assembleErr := prompt.Assemble(cmd.Context(), fsys, req)
	if text == "" && assembleErr != nil {
		return assembleErr
	}

	if err := writeOutput(cmd.OutOrStdout(), outPath, text); err != nil {
		return err
	}
	if fileErrs := prompt.FileErrors(assembleErr); len(fileErrs) > 0 {
		for _, fe := range fileErrs {
			e.log.Warn("%v", fe)
		}
		return fmt.Errorf("%d selected files could not be read", len(fileErrs))
	}
	if outPath != "" {
		e.log.Info("wrote %s (%d files)", outPath, len(st.Selected))
	}
	return nil
}

func writeOutput(stdout io.Writer, outPath, text string) error {
	if outPath == "" {
		_, err := io.WriteString(stdout, text)
		return err
	}
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}
