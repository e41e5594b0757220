// Package config holds promptgen's settings.
//
// Settings are layered, lowest precedence first: built-in defaults, a
// config file (TOML or YAML), PROMPTGEN_* environment variables, and
// finally command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/eliotbyte/promptgen/internal/logging"
	"github.com/eliotbyte/promptgen/internal/project"
	"github.com/eliotbyte/promptgen/internal/project/discovery"
	"github.com/eliotbyte/promptgen/internal/project/ignore"
)

// AppName names the per-user config directory.
const AppName = "promptgen"

// DefaultExcludeDirs are the infrastructure directories skipped by default.
var DefaultExcludeDirs = discovery.DefaultExcludeDirs

// Config is the complete promptgen configuration.
type Config struct {
	Scan   ScanConfig   `toml:"scan" yaml:"scan"`
	Watch  WatchConfig  `toml:"watch" yaml:"watch"`
	Log    LogConfig    `toml:"log" yaml:"log"`
	Output OutputConfig `toml:"output" yaml:"output"`
}

// ScanConfig controls discovery passes.
type ScanConfig struct {
	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string `toml:"exclude_dirs" yaml:"exclude_dirs"`

	// IgnoreFile is the per-directory ignore file name.
	IgnoreFile string `toml:"ignore_file" yaml:"ignore_file"`

	// Precedence is "innermost" or "layered".
	Precedence string `toml:"precedence" yaml:"precedence"`

	// IncludeIgnoreFiles lists ignore files in the tree.
	IncludeIgnoreFiles bool `toml:"include_ignore_files" yaml:"include_ignore_files"`

	// Workers bounds concurrent ignore file and content reads. 0 means GOMAXPROCS.
	Workers int `toml:"workers" yaml:"workers"`
}

// WatchConfig controls the change monitor.
type WatchConfig struct {
	// DebounceMS is the per-path quiet period in milliseconds. 0 disables it.
	DebounceMS int `toml:"debounce_ms" yaml:"debounce_ms"`

	// BufferSize is the watcher event buffer.
	BufferSize int `toml:"buffer_size" yaml:"buffer_size"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// OutputConfig controls artifact assembly.
type OutputConfig struct {
	// Structure includes the file manifest in generated output.
	Structure bool `toml:"structure" yaml:"structure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			ExcludeDirs: append([]string(nil), DefaultExcludeDirs...),
			IgnoreFile:  ignore.DefaultFileName,
			Precedence:  ignore.PrecedenceInnermost.String(),
		},
		Watch: WatchConfig{
			DebounceMS: int(project.DefaultDebounce / time.Millisecond),
			BufferSize: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Output: OutputConfig{
			Structure: true,
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	for _, name := range c.Scan.ExcludeDirs {
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			errs = append(errs, fmt.Errorf("scan.exclude_dirs: %q is not a directory name", name))
		}
	}
	if c.Scan.IgnoreFile == "" || strings.ContainsAny(c.Scan.IgnoreFile, `/\`) {
		errs = append(errs, fmt.Errorf("scan.ignore_file: %q is not a file name", c.Scan.IgnoreFile))
	}
	if _, err := ignore.ParsePrecedence(c.Scan.Precedence); err != nil {
		errs = append(errs, fmt.Errorf("scan.precedence: %w", err))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers: must not be negative, got %d", c.Scan.Workers))
	}
	if c.Watch.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce_ms: must not be negative, got %d", c.Watch.DebounceMS))
	}
	if c.Watch.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("watch.buffer_size: must not be negative, got %d", c.Watch.BufferSize))
	}
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// ScanOptions converts the scan settings for project.Scan. The config
// must have passed Validate.
func (c *Config) ScanOptions() project.ScanOptions {
	precedence, _ := ignore.ParsePrecedence(c.Scan.Precedence)
	excludes := c.Scan.ExcludeDirs
	if excludes == nil {
		excludes = []string{}
	}
	return project.ScanOptions{
		ExcludeDirs:        excludes,
		IgnoreFile:         c.Scan.IgnoreFile,
		Precedence:         precedence,
		IncludeIgnoreFiles: c.Scan.IncludeIgnoreFiles,
		Workers:            c.Scan.Workers,
	}
}

// MonitorOptions converts the watch settings for project.NewMonitor.
func (c *Config) MonitorOptions(log *logging.Logger) project.MonitorOptions {
	debounce := time.Duration(c.Watch.DebounceMS) * time.Millisecond
	if debounce == 0 {
		debounce = -1
	}
	return project.MonitorOptions{
		Scan:       c.ScanOptions(),
		Debounce:   debounce,
		BufferSize: c.Watch.BufferSize,
		Logger:     log,
	}
}

// TOML encodes the configuration as TOML.
func (c *Config) TOML() ([]byte, error) {
	return toml.Marshal(c)
}

// Dir returns the per-user promptgen directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}
