package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AkatukiSora/powerlog-replay/internal/application"
	"github.com/AkatukiSora/powerlog-replay/internal/livetail"
	"github.com/AkatukiSora/powerlog-replay/internal/metrics"
)

var watchFlags struct {
	metricsAddr string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import logs and follow the running game",
	Long: `Import every log found in the configured directories, then follow the
newest one and store matches as they are played. When the game starts a new
session folder the previous log is marked fully imported and the new one is
followed instead.

Stop with Ctrl-C; the match in progress is stored before exiting.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default metrics.address)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := setupSignalHandler(cmd.Context())
	defer stop()

	collector := metrics.NewCollector(nil)
	svc, err := openService(ctx, application.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer svc.Close()

	addr := cfg.Metrics.Address
	if cmd.Flags().Changed("metrics-addr") {
		addr = watchFlags.metricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr, collector)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	active, err := svc.BootstrapImportAllLogsWithProgress(ctx, func(p application.BootstrapProgress) {
		slog.Info("importing log", "current", p.Current, "total", p.Total, "skipped", p.Skipped, "path", p.Path)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "watching %s\n", active)
	tailer := livetail.New(ctx, svc, livetail.Config{
		PollInterval: cfg.Watch.PollInterval,
		OnSwitch: func(path string) {
			fmt.Fprintf(out, "watching %s\n", path)
		},
	})
	if err := tailer.Run(active); err != nil {
		return err
	}

	totals := svc.SessionTotals()
	slog.Info("watch stopped",
		"matches", totals.Matches,
		"turns", totals.Turns,
		"avg_turns", fmt.Sprintf("%.1f", totals.AverageTurns()),
		"actions", totals.Actions,
	)
	fmt.Fprintf(out, "%s matches stored this session\n", humanize.Comma(int64(totals.Matches)))
	return nil
}

func serveMetrics(addr string, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
