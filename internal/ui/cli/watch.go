package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"phelnav/internal/core/session"

	"github.com/spf13/cobra"
)

func runWatch(cmd *cobra.Command, opts *globalOptions) error {
	ui, _ := cmd.Flags().GetBool("ui")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := logToStderr
	if ui {
		mode = logToFile
	}
	feed := newMonitorFeed()
	rt, err := openRuntime(ctx, opts, mode, session.WithReanalysis(feed.changed))
	if err != nil {
		return err
	}
	defer rt.Close()

	if strings.TrimSpace(metricsAddr) == "" {
		metricsAddr = rt.cfg.Observability.MetricsAddress
	}
	if strings.TrimSpace(metricsAddr) != "" {
		srv := NewObservabilityServer(metricsAddr, rt.session)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	if err := rt.session.Build(ctx); err != nil {
		return err
	}
	if err := rt.session.Watch(ctx); err != nil {
		return err
	}

	if ui {
		return runUI(ctx, rt.session, feed)
	}

	stats := rt.session.Index.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %d files (%d symbols). Press Ctrl+C to stop.\n", stats.Files, stats.Symbols)
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-feed.updates:
			stats := rt.session.Index.Stats()
			slog.Info("index updated", "files", len(paths), "symbols", stats.Symbols)
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "%s updated %s\n", time.Now().Format("15:04:05"), p)
			}
		}
	}
}

// monitorFeed hands re-analysis notifications to whoever renders them.
type monitorFeed struct {
	updates chan []string
}

func newMonitorFeed() *monitorFeed {
	return &monitorFeed{updates: make(chan []string, 16)}
}

func (f *monitorFeed) changed(ctx context.Context, paths []string) {
	select {
	case f.updates <- paths:
	case <-ctx.Done():
	}
}
