package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/milestonesync/internal/credentials"
	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/logging"
	"github.com/teemow/milestonesync/internal/server"
)

type serveOptions struct {
	yolo             bool
	disableStreaming bool
}

func newServeCmd() *cobra.Command {
	var (
		opts           serveOptions
		httpAddr       string
		syncInterval   time.Duration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run calendar sync, reminders and the health/MCP HTTP server",
		Long: `Run milestonesync as a service:

  - proactive Google credential refresh
  - batch push of pending milestones and drift pull every sync interval
  - the daily reminder scan at REMINDER_HOUR in CALENDAR_TIMEZONE
  - /healthz, /readyz, /healthz/detailed and the MCP streamable HTTP endpoint /mcp
  - Prometheus metrics on a dedicated port

When the refresh token is revoked the service raises an operator alert, reports
not ready and keeps sending reminders. Run 'milestonesync auth' to recover.

Safety Mode:
  By default, the MCP endpoint exposes only read-only tools.
  Use --yolo to enable tools that change the calendar or send reminders.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("sync-interval") {
				cfg.SyncInterval = syncInterval
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.Metrics.Enabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", defaultHTTPAddr, "HTTP server address for health and MCP endpoints. Can also use HTTP_ADDR env var.")
	cmd.Flags().DurationVar(&syncInterval, "sync-interval", defaultSyncInterval, "Interval between batch push and drift pull runs. Can also use CALENDAR_SYNC_INTERVAL_MINUTES env var.")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write tools on the MCP endpoint. Default is read-only mode.")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")

	// Metrics server flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", defaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(ctx context.Context, cfg Config, opts serveOptions) error {
	logger := newLogger(cfg)

	provider, err := newInstrumentation(ctx)
	if err != nil {
		return err
	}
	defer shutdownInstrumentation(provider, logger)

	a, err := newApp(ctx, cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	defer a.close()

	sc, err := a.serverContext(ctx)
	if err != nil {
		return err
	}

	readOnly := !opts.yolo
	if readOnly {
		logger.Info("MCP endpoint in READ-ONLY mode (use --yolo to enable write tools)")
	} else {
		logger.Warn("MCP endpoint with WRITE tools enabled (--yolo flag is set)")
	}
	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return err
	}

	health := server.NewHealthChecker(sc)
	httpSrv, err := server.NewHTTPServer(server.HTTPServerConfig{
		Addr:             cfg.HTTPAddr,
		Health:           health,
		MCPServer:        mcpSrv,
		DisableStreaming: opts.disableStreaming,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	var metricsSrv *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() && provider.UsesPrometheus() {
		metricsSrv, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.queue.Run(gctx, queueDrainTimeout)
	})
	if a.creds != nil {
		g.Go(func() error {
			return superviseCredentials(gctx, a)
		})
	}
	g.Go(func() error {
		return runSyncLoop(gctx, a, sc)
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("HTTP server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("mcp_endpoint", server.MCPEndpointPath))
		return httpSrv.Run(gctx)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("metrics server starting", slog.String("addr", cfg.Metrics.Addr))
			return metricsSrv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("milestonesync stopped")
	return nil
}

// superviseCredentials runs the refresh loop. A terminal failure alerts the
// operator and ends the loop without stopping the rest of the service;
// readiness reports it from the manager's state.
func superviseCredentials(ctx context.Context, a *app) error {
	err := a.creds.Run(ctx)
	if errors.Is(err, credentials.ErrReauthorizationRequired) {
		a.alertReauthorization(ctx)
		a.logger.Error("calendar sync halted until re-authorization; reminders continue")
		return nil
	}
	return err
}

// runSyncLoop pushes pending flows and pulls drift every sync interval. Runs
// are skipped while credentials require re-authorization.
func runSyncLoop(ctx context.Context, a *app, sc *server.ServerContext) error {
	if a.disabled != nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(a.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		if sc.RequiresReauthorization() {
			a.logger.Debug("sync run skipped, credentials require re-authorization")
		} else {
			syncOnce(ctx, a, sc)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func syncOnce(ctx context.Context, a *app, sc *server.ServerContext) {
	batch, err := a.orchestrator.BatchPushPending(ctx)
	sc.RecordScan(server.BatchSummary(batch, err))
	if err != nil && ctx.Err() == nil {
		a.logger.Error("batch push failed", logging.Err(err))
	}
	if ctx.Err() != nil {
		return
	}

	drift, err := a.orchestrator.PullDrift(ctx)
	sc.RecordScan(server.DriftSummary(drift, err))
	if err != nil && ctx.Err() == nil {
		a.logger.Error("drift pull failed", logging.Err(err))
	}
}

// newInstrumentation creates the OpenTelemetry provider from the environment.
func newInstrumentation(ctx context.Context) (*instrumentation.Provider, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

func shutdownInstrumentation(provider *instrumentation.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}
