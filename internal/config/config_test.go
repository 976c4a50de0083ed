package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.yaml")} {
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig(%q): %v", path, err)
		}
		if cfg.Database.Path != DefaultDatabasePath() {
			t.Errorf("database.path = %q, want default", cfg.Database.Path)
		}
		if cfg.Watch.PollInterval != DefaultPollInterval {
			t.Errorf("watch.poll_interval = %s, want %s", cfg.Watch.PollInterval, DefaultPollInterval)
		}
		if cfg.Render.Format != "xml" || cfg.Render.Indent != "\t" {
			t.Errorf("unexpected render defaults %+v", cfg.Render)
		}
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
database:
  path: /var/lib/powerlog/matches.db
log:
  debug: true
  file: /var/log/powerlog.log
watch:
  log_dirs:
    - /games/hearthstone/Logs
  poll_interval: 2s
render:
  format: json
  indent: "  "
metrics:
  address: 127.0.0.1:9464
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Database.Path != "/var/lib/powerlog/matches.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if !cfg.Log.Debug || cfg.Log.File != "/var/log/powerlog.log" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if len(cfg.Watch.LogDirs) != 1 || cfg.Watch.PollInterval != 2*time.Second {
		t.Errorf("unexpected watch config %+v", cfg.Watch)
	}
	if cfg.Render.Format != "json" || cfg.Render.Indent != "  " {
		t.Errorf("unexpected render config %+v", cfg.Render)
	}
	if cfg.Metrics.Address != "127.0.0.1:9464" {
		t.Errorf("metrics.address = %q", cfg.Metrics.Address)
	}
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "database: [unclosed\n")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:   "poll interval too short",
			mutate: func(c *Config) { c.Watch.PollInterval = time.Millisecond },
			fields: []string{"watch.poll_interval"},
		},
		{
			name:   "unknown format",
			mutate: func(c *Config) { c.Render.Format = "yaml" },
			fields: []string{"render.format"},
		},
		{
			name: "several errors",
			mutate: func(c *Config) {
				c.Database.Path = " "
				c.Render.Indent = "--"
				c.Metrics.Address = "no-port"
				c.Watch.LogDirs = []string{""}
			},
			fields: []string{"database.path", "watch.log_dirs[0]", "render.indent", "metrics.address"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Errors) != len(tt.fields) {
				t.Fatalf("expected %d field errors, got %v", len(tt.fields), verr.Errors)
			}
			for i, f := range tt.fields {
				if verr.Errors[i].Field != f {
					t.Errorf("error %d field = %q, want %q", i, verr.Errors[i].Field, f)
				}
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"POWERLOG_DATABASE_PATH":       "/tmp/other.db",
		"POWERLOG_LOG_DEBUG":           "true",
		"POWERLOG_WATCH_LOG_DIRS":      "/a" + string(os.PathListSeparator) + " " + string(os.PathListSeparator) + "/b",
		"POWERLOG_WATCH_POLL_INTERVAL": "1s",
		"POWERLOG_RENDER_FORMAT":       "json",
		"POWERLOG_METRICS_ADDRESS":     ":9464",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := applyEnvOverrides(cfg, lookup); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.Database.Path != "/tmp/other.db" || !cfg.Log.Debug {
		t.Errorf("unexpected overrides %+v %+v", cfg.Database, cfg.Log)
	}
	if len(cfg.Watch.LogDirs) != 2 || cfg.Watch.LogDirs[1] != "/b" {
		t.Errorf("log dirs = %q", cfg.Watch.LogDirs)
	}
	if cfg.Watch.PollInterval != time.Second || cfg.Render.Format != "json" || cfg.Metrics.Address != ":9464" {
		t.Errorf("unexpected overrides %+v %+v %+v", cfg.Watch, cfg.Render, cfg.Metrics)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("overridden config invalid: %v", err)
	}

	env = map[string]string{"POWERLOG_LOG_DEBUG": "maybe", "POWERLOG_WATCH_POLL_INTERVAL": "soon"}
	err := applyEnvOverrides(DefaultConfig(), lookup)
	if err == nil || !strings.Contains(err.Error(), "POWERLOG_LOG_DEBUG") || !strings.Contains(err.Error(), "POWERLOG_WATCH_POLL_INTERVAL") {
		t.Fatalf("expected both malformed variables reported, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "render:\n  format: json\n")
	t.Setenv("POWERLOG_RENDER_FORMAT", "xml")
	t.Setenv("POWERLOG_RENDER_COMPACT", "1")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}
	if cfg.Render.Format != "xml" || !cfg.Render.Compact {
		t.Errorf("environment did not take precedence: %+v", cfg.Render)
	}

	t.Setenv("POWERLOG_RENDER_FORMAT", "csv")
	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Fatal("expected validation error after override")
	}
}
