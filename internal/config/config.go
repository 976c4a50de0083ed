// Package config loads the powerlog-replay configuration from YAML with
// environment variable overrides.
package config

import "time"

// Config is the complete configuration. Every section is optional in the
// file; ApplyDefaults fills what is missing.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Watch    WatchConfig    `yaml:"watch"`
	Render   RenderConfig   `yaml:"render"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type DatabaseConfig struct {
	// Path of the SQLite database holding imported matches.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Debug bool `yaml:"debug"`
	// File receives a copy of the log output. Empty disables it.
	File string `yaml:"file"`
}

type WatchConfig struct {
	// LogDirs replaces the platform's default Hearthstone log directories.
	LogDirs []string `yaml:"log_dirs"`
	// PollInterval is the fallback poll period for the tailed log.
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RenderConfig struct {
	// Format is "xml" or "json".
	Format string `yaml:"format"`
	// Indent is the per-level indentation. Empty means a tab.
	Indent string `yaml:"indent"`
	// Compact disables indentation and newlines.
	Compact bool `yaml:"compact"`
}

type MetricsConfig struct {
	// Address serves /metrics while watching. Empty disables the endpoint.
	Address string `yaml:"address"`
}
