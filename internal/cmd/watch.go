package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/project"
	"github.com/eliotbyte/promptgen/internal/project/tree"
)

// NewWatchCommand creates the 'promptgen watch' command
func NewWatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [root]",
		Short: "Print the tree and reprint it whenever the project changes",
		Long: `Print the ignore-aware tree, then watch the project and print it again
after every change settles. Editing an ignore file updates the tree too.
Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, firstArg(args))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, e)
		},
	}
}

func runWatch(ctx context.Context, cmd *cobra.Command, e *env) error {
	m, err := project.NewMonitor(e.root, e.cfg.MonitorOptions(e.log))
	if err != nil {
		return err
	}
	defer m.Close()

	out := cmd.OutOrStdout()
	color := colorEnabled(out)
	m.Subscribe(func(snap project.Snapshot) {
		if snap.Err != nil {
			fmt.Fprintf(out, "# %d: %v\n", snap.Seq, snap.Err)
			return
		}
		dirs, files := snap.Tree.Count()
		fmt.Fprintf(out, "# %d: %d directories, %d files\n", snap.Seq, dirs, files)
		if err := snap.Tree.Render(out, tree.RenderOptions{Color: color}); err != nil {
			e.log.Error("render: %v", err)
		}
	})

	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	if err := m.Close(); err != nil {
		return err
	}
	stats := m.Stats()
	e.log.Debug("watch stopped after %d passes, %d coalesced, %d superseded", stats.Passes, stats.Coalesced, stats.Superseded)
	return nil
}
