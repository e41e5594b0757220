package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/eliotbyte/promptgen/internal/config"
	"github.com/eliotbyte/promptgen/internal/logging"
	"github.com/eliotbyte/promptgen/internal/project"
	"github.com/eliotbyte/promptgen/internal/session"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	logLevel   string
	root       string
	stateDir   string
}

// env is everything a command needs after flags, config file and
// environment have been resolved.
type env struct {
	cfg  *config.Config
	log  *logging.Logger
	root string
	opts *globalOptions
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then PROMPTGEN_* variables, then flags.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	path, explicit := o.configPath, o.configPath != ""
	if !explicit {
		p, err := config.DefaultPath()
		if err != nil {
			path = ""
		} else {
			path = p
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, found, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if explicit && !found {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup resolves the environment for cmd. A positional root argument, if
// given, overrides --root.
func (o *globalOptions) setup(cmd *cobra.Command, rootArg string) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Output = cmd.ErrOrStderr()
	log := logging.New(logCfg)

	root := o.root
	if rootArg != "" {
		root = rootArg
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	return &env{cfg: cfg, log: log, root: abs, opts: o}, nil
}

// scan runs one pass over the project root and logs skipped entries.
func (e *env) scan(cmd *cobra.Command) (project.Snapshot, error) {
	fsys, err := project.OpenFS(e.root)
	if err != nil {
		return project.Snapshot{}, err
	}
	snap, err := project.Scan(cmd.Context(), fsys, e.cfg.ScanOptions())
	if err != nil {
		return snap, err
	}
	for _, skipped := range snap.Errors {
		e.log.Warn("skipped: %v", skipped)
	}
	return snap, nil
}

// store opens the session store.
func (e *env) store() (*session.Store, error) {
	dir := e.opts.stateDir
	if dir == "" {
		base, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "sessions")
	}
	return session.NewStore(dir), nil
}

// colorEnabled reports whether w is a terminal.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
