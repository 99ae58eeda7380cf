package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/credentials"
	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/lock"
	"github.com/teemow/milestonesync/internal/logging"
	"github.com/teemow/milestonesync/internal/notify"
	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/reminder"
	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/syncer"
)

const (
	queueDrainTimeout = 10 * time.Second
	webhookTimeout    = 15 * time.Second
	redisLockPrefix   = "milestonesync:lock:"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	location *time.Location

	store        records.Store
	creds        *credentials.Manager
	gateway      *calendar.Gateway
	orchestrator *syncer.Orchestrator
	queue        *notify.Queue
	scheduler    *reminder.Scheduler
	alerter      *notify.OperatorAlerter

	// disabled is why calendar sync and reminders are off, or nil.
	disabled error

	sc      *server.ServerContext
	closers []func() error
}

// newApp builds every component from cfg. The caller must call close.
func newApp(ctx context.Context, cfg Config, logger *slog.Logger, metrics *instrumentation.Metrics) (a *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, logger: logger, metrics: metrics, location: loc}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, err
	}
	sender, err := a.newSender()
	if err != nil {
		return nil, err
	}
	a.queue = notify.NewQueue(sender, notify.WithLogger(logger))
	a.closers = append(a.closers, a.drainQueue)
	a.alerter = notify.NewOperatorAlerter(a.queue, cfg.OperatorRecipient, logger)

	if err := a.initCalendar(ctx); err != nil {
		return nil, err
	}

	var gw syncer.Gateway
	if a.gateway != nil {
		gw = a.gateway
	}
	syncOpts := []syncer.Option{syncer.WithLogger(logger), syncer.WithMetrics(metrics), syncer.WithLocker(locker)}
	reminderOpts := []reminder.Option{
		reminder.WithLocker(locker),
		reminder.WithLocation(loc),
		reminder.WithHour(cfg.ReminderHour),
		reminder.WithLogger(logger),
		reminder.WithMetrics(metrics),
		reminder.WithScanHook(func(res reminder.RunResult, err error) {
			a.recordScan(server.ReminderSummary(res, err))
		}),
	}
	if a.disabled != nil {
		syncOpts = append(syncOpts, syncer.WithDisabled(a.disabled))
		reminderOpts = append(reminderOpts, reminder.WithDisabled(a.disabled))
	}

	if a.orchestrator, err = syncer.New(a.store, gw, syncOpts...); err != nil {
		return nil, fmt.Errorf("failed to create sync orchestrator: %w", err)
	}
	if a.scheduler, err = reminder.New(a.store, a.queue, reminderOpts...); err != nil {
		return nil, fmt.Errorf("failed to create reminder scheduler: %w", err)
	}
	return a, nil
}

// initCalendar initializes credentials and the gateway. A disabled flag or
// incomplete credentials switch the integration off instead of failing.
func (a *app) initCalendar(ctx context.Context) error {
	store := credentials.NewFileStore(a.cfg.CredentialsFile)
	manager := credentials.New(a.cfg.Credentials,
		credentials.WithTokenStore(store),
		credentials.WithLogger(a.logger),
		credentials.WithMetrics(a.metrics),
	)

	err := manager.Initialize(ctx)
	switch {
	case errors.Is(err, credentials.ErrDisabled):
		a.disabled = err
		a.logger.Info("calendar integration disabled", logging.Err(err))
		return nil
	case credentials.IsConfigurationError(err):
		a.disabled = err
		a.logger.Warn("calendar integration disabled by incomplete configuration", logging.Err(err))
		return nil
	case err != nil:
		return fmt.Errorf("failed to initialize credentials: %w", err)
	}

	gateway, err := calendar.NewGateway(manager, calendar.GatewayConfig{
		CalendarID: a.cfg.CalendarID,
		Location:   a.location,
	}, calendar.WithLogger(a.logger), calendar.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to create calendar gateway: %w", err)
	}
	a.creds, a.gateway = manager, gateway
	return nil
}

func (a *app) openStore(ctx context.Context) (records.Store, error) {
	switch a.cfg.RecordStore {
	case storeMemory:
		return records.NewMemoryStore(), nil
	case storeSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.SQLitePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create record store directory: %w", err)
		}
		store, err := records.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite record store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case storePostgres:
		pool, err := records.OpenPostgres(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		store, err := records.NewPostgresStore(pool)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare postgres schema: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported record store %q", a.cfg.RecordStore)
}

func (a *app) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.LockBackend != lockRedis {
		return lock.NewMemoryLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client, redisLockPrefix), nil
}

func (a *app) newSender() (notify.Sender, error) {
	switch a.cfg.NotifyBackend {
	case notifySignal:
		return notify.NewSignalSender(a.cfg.SignalUserID)
	case notifyWebhook:
		return notify.NewWebhookSender(a.cfg.WebhookURL, &http.Client{Timeout: webhookTimeout})
	}
	return notify.NewLogSender(a.logger), nil
}

// serverContext returns the shared context for MCP tools and health checks.
func (a *app) serverContext(ctx context.Context) (*server.ServerContext, error) {
	if a.sc != nil {
		return a.sc, nil
	}
	components := server.Components{
		Gateway:      a.gateway,
		Orchestrator: a.orchestrator,
		Scheduler:    a.scheduler,
		Store:        a.store,
		Metrics:      a.metrics,
		Location:     a.location,
		Disabled:     a.disabled,
	}
	if a.creds != nil {
		components.Credentials = a.creds
	}
	sc, err := server.NewServerContext(ctx, components)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	a.sc = sc
	a.closers = append(a.closers, sc.Shutdown)
	return sc, nil
}

func (a *app) recordScan(summary server.ScanSummary) {
	if a.sc != nil {
		a.sc.RecordScan(summary)
	}
}

// alertReauthorization raises the operator notice for a terminal credential
// failure.
func (a *app) alertReauthorization(ctx context.Context) {
	a.alerter.Alert(ctx, "Calendar re-authorization required",
		credentials.ReauthorizationNotice(a.cfg.CredentialsFile))
}

// drainQueue flushes pending notifications. Close starts the worker when no
// one has, so one-shot commands deliver what they enqueued.
func (a *app) drainQueue() error {
	ctx, cancel := context.WithTimeout(context.Background(), queueDrainTimeout)
	defer cancel()
	return a.queue.Close(ctx)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", logging.Err(err))
		}
	}
	a.closers = nil
}
