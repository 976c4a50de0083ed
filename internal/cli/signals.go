package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler returns a context canceled on SIGINT or SIGTERM.
func setupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
