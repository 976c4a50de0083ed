package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultDatabaseFile = "powerlog-replay.db"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultRenderFormat = "xml"
	DefaultRenderIndent = "\t"
	defaultAppDirName   = "powerlog-replay"
	minimumPollInterval = 50 * time.Millisecond
	maximumPollInterval = time.Minute
)

// DefaultDatabasePath returns the database location under the user's config
// directory, falling back to the working directory.
func DefaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return DefaultDatabaseFile
	}
	return filepath.Join(dir, defaultAppDirName, DefaultDatabaseFile)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath()
	}
	if cfg.Watch.PollInterval == 0 {
		cfg.Watch.PollInterval = DefaultPollInterval
	}
	if cfg.Render.Format == "" {
		cfg.Render.Format = DefaultRenderFormat
	}
	if cfg.Render.Indent == "" {
		cfg.Render.Indent = DefaultRenderIndent
	}
}
