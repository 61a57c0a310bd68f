package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/renix-codex/feedsync/internal/api"
	"github.com/renix-codex/feedsync/internal/logger"
	"github.com/renix-codex/feedsync/internal/metrics"
	server "github.com/renix-codex/feedsync/internal/server"
	"github.com/renix-codex/feedsync/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feed over HTTP",
	Long: `Open the local store, optionally refresh from the remote source and
serve the paginated feed, like flags, avatars and a websocket event stream.

Examples:
  # Serve with the default configuration
  feedsync serve

  # Serve with a custom config and periodic refresh
  FEEDSYNC_SYNC_REFRESH_INTERVAL=5m feedsync serve --config ./feedsync.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "feedsync",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", logger.Err(err))
		}
	}()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsHandler = metrics.Handler()
		logger.Info("metrics enabled", "path", "/metrics")
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to load local feed: %w", err)
	}
	if cfg.Sync.RefreshOnStart {
		if err := a.api.Refresh(ctx); err != nil {
			logger.Warn("initial refresh skipped", logger.Err(err))
		}
	}

	srv := server.New(a.api, a.events, server.Options{
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Metrics:         metricsHandler,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.ListenAddr)
	})
	if cfg.Sync.RefreshInterval > 0 {
		g.Go(func() error {
			refreshLoop(gctx, a.api, cfg.Sync.RefreshInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("feedsync stopped")
	return nil
}

// refreshLoop triggers a remote refresh every interval until ctx is done.
// Ticks that land on an in-flight load are skipped.
func refreshLoop(ctx context.Context, a *api.API, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Refresh(ctx); err != nil {
				if errors.Is(err, api.ErrBusy) {
					logger.Debug("periodic refresh skipped, load in flight")
					continue
				}
				logger.Warn("periodic refresh", logger.Err(err))
			}
		}
	}
}
