// Package cli implements the powerlog-replay command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AkatukiSora/powerlog-replay/internal/application"
	"github.com/AkatukiSora/powerlog-replay/internal/applog"
	"github.com/AkatukiSora/powerlog-replay/internal/config"
	"github.com/AkatukiSora/powerlog-replay/internal/persistence"
	"github.com/AkatukiSora/powerlog-replay/internal/watcher"
)

var (
	// Global flags
	cfgFile string
	dbPath  string
	debug   bool

	// cfg is loaded before every command runs.
	cfg      *config.Config
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "powerlog-replay",
	Short: "Convert Hearthstone Power.log files into replay documents",
	Long: `powerlog-replay reads the debug log written by the Hearthstone client
(Power.log) and rebuilds every match in it as a tree of typed nodes.

It can:
  - convert a log to an XML or JSON replay document
  - import logs into a local SQLite database
  - follow the running game and store matches as they are played`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug logging")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.Database.Path = dbPath
	}
	if debug {
		loaded.Log.Debug = true
	}
	cfg = loaded

	logFile := cfg.Log.File
	// The watcher runs unattended; keep a log file even when none is configured.
	if logFile == "" && cmd == watchCmd {
		logFile = applog.DefaultLogPath()
	}
	closer, err := applog.InitWriter(cmd.ErrOrStderr(), cfg.Log.Debug, logFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	closeLog = closer
	return nil
}

// openService opens the configured database and wraps it in an import
// service that discovers logs in the configured directories.
func openService(ctx context.Context, opts ...application.Option) (application.AppService, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	repo, err := persistence.OpenSQLiteRepository(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	dirs := cfg.Watch.LogDirs
	locator := func() ([]string, error) {
		return watcher.DetectAllLogFiles(dirs...)
	}
	return application.NewService(repo, locator, opts...), nil
}
