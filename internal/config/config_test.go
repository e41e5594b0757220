package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/eliotbyte/promptgen/internal/project/ignore"
)

type mapFS map[string]string

func (m mapFS) ReadFile(path string) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(s), nil
}

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if !reflect.DeepEqual(cfg.Scan.ExcludeDirs, []string{"node_modules", ".git"}) {
		t.Errorf("ExcludeDirs = %v", cfg.Scan.ExcludeDirs)
	}
	if cfg.Scan.IgnoreFile != ".gitignore" {
		t.Errorf("IgnoreFile = %q", cfg.Scan.IgnoreFile)
	}
	if cfg.Watch.DebounceMS != 100 {
		t.Errorf("DebounceMS = %d", cfg.Watch.DebounceMS)
	}
	if !cfg.Output.Structure {
		t.Error("Structure should default to true")
	}

	cfg.Scan.ExcludeDirs[0] = "changed"
	if DefaultExcludeDirs[0] != "node_modules" {
		t.Error("Default shares ExcludeDirs with the package default")
	}
}

func TestLoader_MissingFile(t *testing.T) {
	cfg, found, err := NewLoader(mapFS{}).Load("/nope/config.toml", Default())
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoader_TOML(t *testing.T) {
	fsys := mapFS{"/c/config.toml": `
[scan]
exclude_dirs = ["vendor"]
precedence = "layered"

[log]
level = "debug"
`}
	base := Default()
	cfg, found, err := NewLoader(fsys).Load("/c/config.toml", base)
	if err != nil || !found {
		t.Fatalf("Load = %v, %v", found, err)
	}

	if !reflect.DeepEqual(cfg.Scan.ExcludeDirs, []string{"vendor"}) {
		t.Errorf("ExcludeDirs = %v", cfg.Scan.ExcludeDirs)
	}
	if cfg.Scan.Precedence != "layered" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Scan.IgnoreFile != ".gitignore" {
		t.Errorf("absent key lost its default: IgnoreFile = %q", cfg.Scan.IgnoreFile)
	}
	if !reflect.DeepEqual(base.Scan.ExcludeDirs, []string{"node_modules", ".git"}) {
		t.Errorf("base modified: %v", base.Scan.ExcludeDirs)
	}
}

func TestLoader_YAML(t *testing.T) {
	fsys := mapFS{
		"c.yaml": "scan:\n  ignore_file: .promptignore\nwatch:\n  debounce_ms: 250\n",
		"e.yml":  "\n",
	}
	cfg, _, err := NewLoader(fsys).Load("c.yaml", Default())
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.Scan.IgnoreFile != ".promptignore" || cfg.Watch.DebounceMS != 250 {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg, found, err := NewLoader(fsys).Load("e.yml", Default())
	if err != nil || !found {
		t.Fatalf("empty yaml: %v, %v", found, err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("empty yaml changed config: %+v", cfg)
	}
}

func TestLoader_Errors(t *testing.T) {
	fsys := mapFS{
		"bad.toml":     "[scan\nworkers = 1\n",
		"unknown.toml": "[scan]\nbogus = 1\n",
		"bad.yaml":     "scan: [\n",
		"c.json":       "{}",
	}

	tests := []struct {
		path      string
		wantParse bool
	}{
		{"bad.toml", true},
		{"unknown.toml", true},
		{"bad.yaml", true},
		{"c.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, _, err := NewLoader(fsys).Load(tt.path, Default())
			if err == nil {
				t.Fatal("expected an error")
			}
			var perr *ParseError
			if errors.As(err, &perr) != tt.wantParse {
				t.Errorf("error = %v, ParseError = %v", err, !tt.wantParse)
			}
			if tt.wantParse && perr.Path != tt.path {
				t.Errorf("ParseError.Path = %q", perr.Path)
			}
		})
	}

	_, _, err := NewLoader(fsys).Load("c.json", Default())
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("json error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoad_RealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[scan]\nworkers = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, found, err := Load(path)
	if err != nil || !found || cfg.Scan.Workers != 3 {
		t.Errorf("Load = %+v, %v, %v", cfg, found, err)
	}
}

func TestApplyEnvFrom(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnvFrom(envMap(map[string]string{
		"PROMPTGEN_EXCLUDE_DIRS":         " vendor, dist ,,",
		"PROMPTGEN_PRECEDENCE":           "layered",
		"PROMPTGEN_INCLUDE_IGNORE_FILES": "true",
		"PROMPTGEN_WORKERS":              "4",
		"PROMPTGEN_LOG_LEVEL":            "warn",
		"PROMPTGEN_STRUCTURE":            "false",
		"PROMPTGEN_UNRELATED":            "x",
	}))
	if err != nil {
		t.Fatalf("ApplyEnvFrom error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Scan.ExcludeDirs, []string{"vendor", "dist"}) {
		t.Errorf("ExcludeDirs = %v", cfg.Scan.ExcludeDirs)
	}
	if cfg.Scan.Precedence != "layered" || !cfg.Scan.IncludeIgnoreFiles || cfg.Scan.Workers != 4 {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if cfg.Log.Level != "warn" || cfg.Output.Structure {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestApplyEnvFrom_EmptyExcludeList(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnvFrom(envMap(map[string]string{"PROMPTGEN_EXCLUDE_DIRS": ""})); err != nil {
		t.Fatal(err)
	}
	if cfg.Scan.ExcludeDirs == nil || len(cfg.Scan.ExcludeDirs) != 0 {
		t.Errorf("ExcludeDirs = %#v, want empty non-nil", cfg.Scan.ExcludeDirs)
	}
	if got := cfg.ScanOptions().ExcludeDirs; got == nil || len(got) != 0 {
		t.Errorf("ScanOptions().ExcludeDirs = %#v, want empty non-nil", got)
	}
}

func TestApplyEnvFrom_Malformed(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnvFrom(envMap(map[string]string{
		"PROMPTGEN_WORKERS":   "many",
		"PROMPTGEN_STRUCTURE": "maybe",
	}))
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"PROMPTGEN_WORKERS", "PROMPTGEN_STRUCTURE"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{"empty exclude", func(c *Config) { c.Scan.ExcludeDirs = []string{""} }, "scan.exclude_dirs"},
		{"nested exclude", func(c *Config) { c.Scan.ExcludeDirs = []string{"a/b"} }, "scan.exclude_dirs"},
		{"ignore file path", func(c *Config) { c.Scan.IgnoreFile = "sub/.gitignore" }, "scan.ignore_file"},
		{"precedence", func(c *Config) { c.Scan.Precedence = "outermost" }, "scan.precedence"},
		{"workers", func(c *Config) { c.Scan.Workers = -1 }, "scan.workers"},
		{"debounce", func(c *Config) { c.Watch.DebounceMS = -5 }, "watch.debounce_ms"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestScanOptions(t *testing.T) {
	cfg := Default()
	cfg.Scan.Precedence = "layered"
	cfg.Scan.IgnoreFile = ".promptignore"
	cfg.Scan.Workers = 2

	opts := cfg.ScanOptions()
	if opts.Precedence != ignore.PrecedenceLayered {
		t.Errorf("Precedence = %v", opts.Precedence)
	}
	if opts.IgnoreFile != ".promptignore" || opts.Workers != 2 {
		t.Errorf("opts = %+v", opts)
	}
}

func TestMonitorOptions(t *testing.T) {
	cfg := Default()
	if got := cfg.MonitorOptions(nil).Debounce; got != 100*time.Millisecond {
		t.Errorf("Debounce = %v", got)
	}
	cfg.Watch.DebounceMS = 0
	if got := cfg.MonitorOptions(nil).Debounce; got >= 0 {
		t.Errorf("Debounce = %v, want disabled", got)
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scan.Precedence = "layered"
	data, err := cfg.TOML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "layered") {
		t.Errorf("TOML output missing precedence:\n%s", data)
	}

	got, _, err := NewLoader(mapFS{"x.toml": string(data)}).Load("x.toml", Default())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}
