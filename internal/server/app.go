// Package server initializes and runs the engine: storage and migrations,
// the live-event consumer, the worker pool draining the trigger queue, the
// background sweepers, and the ops HTTP endpoint. It also handles graceful
// shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/catalog"
	"github.com/livebell/engine/internal/server/config"
	"github.com/livebell/engine/internal/server/events"
	"github.com/livebell/engine/internal/server/ops"
	"github.com/livebell/engine/internal/server/ratelimit"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
	"github.com/livebell/engine/internal/server/services"
	"github.com/livebell/engine/internal/server/worker"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	ledger      *services.Ledger
	payments    *services.Payments
	entitlement *services.Entitlement
	notifier    *services.Notifier
	limiter     *ratelimit.Limiter
	repomanager repomanager.RepositoryManager
}

// NewApp builds the application graph. transport is the external push
// channel; pass nil to fall back to the log transport for local runs.
func NewApp(cfg *config.Config, transport services.Transport) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	if transport == nil {
		transport = services.NewLogTransport(logger)
	}

	cat := catalog.Default()
	limiter := ratelimit.New(ratelimit.DefaultLimits(), cfg.RateLimitSweepInterval, logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		ledger:      services.NewLedger(db, m, logger),
		payments:    services.NewPayments(db, m, cat, logger),
		entitlement: services.NewEntitlement(db, m, cat, cfg.DailyPoints, logger),
		notifier:    services.NewNotifier(db, m, transport, cfg.RetentionWindow, logger),
		limiter:     limiter,
		repomanager: m,
	}, nil
}

// Ledger exposes balance operations to the embedding layer.
func (app *App) Ledger() *services.Ledger { return app.ledger }

// Payments exposes charge validation to the embedding layer.
func (app *App) Payments() *services.Payments { return app.payments }

// Entitlement exposes premium resolution to the embedding layer.
func (app *App) Entitlement() *services.Entitlement { return app.entitlement }

// Limiter exposes the action throttle to the embedding layer.
func (app *App) Limiter() *ratelimit.Limiter { return app.limiter }

// SpendLiveCheck debits the configured live-check cost and runs check in the
// same atomic unit; check's failure refunds the debit by rollback.
func (app *App) SpendLiveCheck(ctx context.Context, accountID int64, check func(ctx context.Context) error) (int64, error) {
	return app.ledger.Spend(ctx, accountID, app.config.LiveCheckCost, check)
}

// CreditReferral grants the configured referral bonus.
func (app *App) CreditReferral(ctx context.Context, accountID int64) (int64, error) {
	return app.ledger.Credit(ctx, accountID, app.config.ReferralBonusPoints, "referral")
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startConsumer(ctx context.Context, cancelFunc context.CancelFunc) {
	c, err := events.New(events.Options{
		URL:      app.config.AMQPURL,
		Queue:    app.config.AMQPQueue,
		Prefetch: app.config.AMQPPrefetch,
	}, app.db, app.repomanager, app.logger)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}
	defer c.Close()

	if err := c.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startOpsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := ops.New(app.config.OpsAddr, app.db, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startConsumer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startOpsServer(ctx, cancelFunc)
	}()

	opts := worker.Options{
		PollInterval:      app.config.PollInterval,
		VisibilityTimeout: app.config.VisibilityTimeout,
		MaxRetries:        app.config.MaxRetries,
	}
	for i := 0; i < app.config.WorkerCount; i++ {
		w := worker.New(fmt.Sprintf("worker-%d", i), app.db, app.repomanager,
			app.notifier, app.limiter, nil, opts, app.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.notifier.RunSweeper(ctx, app.config.RetentionSweepInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
