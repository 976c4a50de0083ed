// Package applog initialises the global slog logger for the application.
// Call Init once at startup; all other packages use log/slog directly.
package applog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

var debugMode bool

// Init sets up the global slog logger. Text logs go to stderr, keeping stdout
// free for rendered replays, and are copied to logFile when it is set. If
// debug is true, the minimum log level is Debug; otherwise Info.
//
// The returned function closes the log file.
func Init(debug bool, logFile string) (func() error, error) {
	return InitWriter(os.Stderr, debug, logFile)
}

// InitWriter is Init with an explicit console writer.
func InitWriter(console io.Writer, debug bool, logFile string) (func() error, error) {
	debugMode = debug

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	closer := func() error { return nil }
	writers := []io.Writer{console}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return closer, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return closer, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f.Close
	}

	h := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	return closer, nil
}

// IsDebug reports whether debug mode is active.
func IsDebug() bool {
	return debugMode
}

// DefaultLogPath is the log file used by long-running commands when none is
// configured.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "powerlog-replay.log")
}
