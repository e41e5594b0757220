package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither TOML
// nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// ParseError describes a config file that could not be decoded.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Message)
}

// Unwrap returns the decoder error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// FileSystem abstracts reads so tests can supply content.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads from the real filesystem.
type OSFS struct{}

// ReadFile reads the named file.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader reads config files over a FileSystem.
type Loader struct {
	fs FileSystem
}

// NewLoader creates a loader. A nil fs uses OSFS.
func NewLoader(fsys FileSystem) *Loader {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &Loader{fs: fsys}
}

// Load reads path into a copy of base. A missing file is not an error and
// yields base unchanged; keys absent from the file keep their base values.
func (l *Loader) Load(path string, base *Config) (*Config, bool, error) {
	cfg := base.clone()

	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Load reads path from the real filesystem on top of the defaults.
func Load(path string) (*Config, bool, error) {
	return NewLoader(nil).Load(path, Default())
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			perr := &ParseError{Path: path, Message: err.Error(), Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				perr.Line, _ = derr.Position()
			}
			return perr
		}
	case ".yaml", ".yml":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return &ParseError{Path: path, Message: err.Error(), Err: err}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

func (c *Config) clone() *Config {
	out := *c
	if c.Scan.ExcludeDirs != nil {
		out.Scan.ExcludeDirs = append([]string(nil), c.Scan.ExcludeDirs...)
	}
	return &out
}
