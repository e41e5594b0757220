package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment variable promptgen reads.
const EnvPrefix = "PROMPTGEN_"

// envSetters maps environment variables to the settings they override.
var envSetters = map[string]func(c *Config, v string) error{
	"PROMPTGEN_EXCLUDE_DIRS": func(c *Config, v string) error {
		c.Scan.ExcludeDirs = splitList(v)
		return nil
	},
	"PROMPTGEN_IGNORE_FILE": func(c *Config, v string) error {
		c.Scan.IgnoreFile = v
		return nil
	},
	"PROMPTGEN_PRECEDENCE": func(c *Config, v string) error {
		c.Scan.Precedence = v
		return nil
	},
	"PROMPTGEN_INCLUDE_IGNORE_FILES": func(c *Config, v string) error {
		return setBool(&c.Scan.IncludeIgnoreFiles, v)
	},
	"PROMPTGEN_WORKERS": func(c *Config, v string) error {
		return setInt(&c.Scan.Workers, v)
	},
	"PROMPTGEN_DEBOUNCE_MS": func(c *Config, v string) error {
		return setInt(&c.Watch.DebounceMS, v)
	},
	"PROMPTGEN_BUFFER_SIZE": func(c *Config, v string) error {
		return setInt(&c.Watch.BufferSize, v)
	},
	"PROMPTGEN_LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = v
		return nil
	},
	"PROMPTGEN_STRUCTURE": func(c *Config, v string) error {
		return setBool(&c.Output.Structure, v)
	},
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides c with the process environment.
func (c *Config) ApplyEnv() error {
	return c.ApplyEnvFrom(os.LookupEnv)
}

// ApplyEnvFrom overrides c with the variables lookup reports. Unknown
// PROMPTGEN_* variables are ignored; malformed values are errors.
func (c *Config) ApplyEnvFrom(lookup LookupFunc) error {
	var errs []error
	for _, key := range EnvKeys() {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := envSetters[key](c, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// EnvKeys returns the recognized environment variables.
func EnvKeys() []string {
	keys := make([]string, 0, len(envSetters))
	for k := range envSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid boolean %q", v)
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q", v)
	}
	*dst = n
	return nil
}
