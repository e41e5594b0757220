package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for promptgen
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "promptgen",
		Short: "Build language-model prompts from an ignore-aware project tree",
		Long: `Promptgen lists the files of a project the way git sees them, honoring
every .gitignore at every level, and assembles selected files together with
your notes into a single prompt.

The selection and notes are saved per project, so they survive between runs.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (TOML or YAML); defaults to the user config dir")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.root, "root", ".", "Project root")
	flags.StringVar(&opts.stateDir, "state-dir", "", "Session directory (for testing)")
	_ = flags.MarkHidden("state-dir")

	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewManifestCommand(opts))
	cmd.AddCommand(NewCheckIgnoreCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewNotesCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}
