package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment variable read by LoadConfigWithEnvOverrides.
const EnvPrefix = "POWERLOG_"

// LoadConfig loads configuration from a YAML file at the specified path,
// applies defaults and validates the result. A missing file, or an empty
// path, yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
			}
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration like LoadConfig and then
// applies POWERLOG_SECTION_FIELD environment variables, which take precedence
// over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("DATABASE_PATH", &cfg.Database.Path)
	boolean("LOG_DEBUG", &cfg.Log.Debug)
	str("LOG_FILE", &cfg.Log.File)
	if v, ok := lookup(EnvPrefix + "WATCH_LOG_DIRS"); ok {
		cfg.Watch.LogDirs = splitList(v)
	}
	duration("WATCH_POLL_INTERVAL", &cfg.Watch.PollInterval)
	str("RENDER_FORMAT", &cfg.Render.Format)
	str("RENDER_INDENT", &cfg.Render.Indent)
	boolean("RENDER_COMPACT", &cfg.Render.Compact)
	str("METRICS_ADDRESS", &cfg.Metrics.Address)

	return errors.Join(errs...)
}

// splitList splits an OS path list, ignoring empty entries.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, string(os.PathListSeparator)) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
