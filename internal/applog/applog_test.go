package applog

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Not parallel: Init replaces the process-wide default logger.
func TestInitWriterCopiesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "app.log")
	closeLog, err := InitWriter(&console, true, logFile)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !IsDebug() {
		t.Error("expected debug mode")
	}

	slog.Debug("match sealed", "ordinal", 3)
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for name, out := range map[string]string{"console": console.String(), "file": string(data)} {
		if !strings.Contains(out, "match sealed") || !strings.Contains(out, "ordinal=3") {
			t.Errorf("%s output missing record: %q", name, out)
		}
	}
}

func TestInitWriterInfoLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var console bytes.Buffer
	if _, err := InitWriter(&console, false, ""); err != nil {
		t.Fatalf("init: %v", err)
	}
	slog.Debug("hidden")
	slog.Info("shown")
	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "shown") {
		t.Errorf("unexpected output %q", console.String())
	}
}
