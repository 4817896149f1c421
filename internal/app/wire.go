package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/efreitasn/predictx/internal/broadcast"
	"github.com/efreitasn/predictx/internal/config"
	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/engine"
	"github.com/efreitasn/predictx/internal/handler"
	"github.com/efreitasn/predictx/internal/ledger"
	"github.com/efreitasn/predictx/internal/metrics"
	"github.com/efreitasn/predictx/internal/notify"
	"github.com/efreitasn/predictx/internal/redis"
	"github.com/efreitasn/predictx/internal/service"
	"github.com/efreitasn/predictx/internal/store/memory"
	"github.com/efreitasn/predictx/internal/store/postgres"
)

// Dependencies bundles everything Run needs. It is built by Wire and torn
// down by the cleanup func Wire returns.
type Dependencies struct {
	Store      domain.Store
	Notifier   *notify.Notifier
	Hub        *broadcast.Hub
	Reconciler *engine.Reconciler
	Metrics    *metrics.Metrics
	Router     http.Handler
}

// Wire constructs the backends selected by cfg. On error every resource
// opened so far is already released.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	m := metrics.New()
	var pings []func(context.Context) error

	var store domain.Store
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		pings = append(pings, pgClient.Ping)

		if cfg.DBRunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		store = postgres.NewStore(pgClient, cfg.DBTxRetries, m, logger)
	default:
		store = memory.New(logger)
	}
	closers = append(closers, store.Close)

	var rdb *redis.Client
	if cfg.LockBackend == config.LockRedis || cfg.NotifyStream != "" {
		var err error
		rdb, err = redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close failed", slog.String("error", err.Error()))
			}
		})
		pings = append(pings, rdb.Ping)
	}

	var locker engine.MarketLocker
	if cfg.LockBackend == config.LockRedis {
		locker = redis.NewMarketLocker(rdb, cfg.LockTTL, cfg.LockWait)
	} else {
		locker = engine.NewLocalLocker().WithWait(cfg.LockWait)
	}

	senders := []notify.Sender{
		notify.NewWebhookSender(store.Webhooks(), &http.Client{Timeout: cfg.WebhookTimeout}),
	}
	if cfg.NotifyLog {
		senders = append(senders, notify.NewLogSender(logger))
	}
	if cfg.NotifyStream != "" {
		senders = append(senders, redis.NewStreamSender(rdb, cfg.NotifyStream))
	}
	notifier := notify.NewNotifier(senders, cfg.NotifyEvents, cfg.WebhookTimeout, m, logger)

	led := ledger.New()
	defaultBalance := cfg.DefaultBalanceCents()
	matcher := engine.NewMatcher(engine.SelfTradePolicy(cfg.SelfTradePolicy), m, logger)
	coord := engine.NewCoordinator(store, led, matcher, locker, notifier, defaultBalance, m, logger)
	reconciler := engine.NewReconciler(store, cfg.ReconcileInterval, m, logger)
	hub := broadcast.NewHub(cfg.BroadcastBuffer, m, logger)

	router := handler.NewRouter(handler.Deps{
		Orders:     service.NewOrderService(coord, store),
		Balances:   service.NewBalanceService(store, led, defaultBalance),
		Markets:    service.NewMarketService(store),
		Webhooks:   service.NewWebhookService(store.Webhooks()),
		Reconciler: reconciler,
		Stream:     broadcast.NewWSHandler(hub, logger),
		Metrics:    m,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, ping := range pings {
				errs = append(errs, ping(ctx))
			}
			return errors.Join(errs...)
		},
	}, logger)

	return &Dependencies{
		Store:      store,
		Notifier:   notifier,
		Hub:        hub,
		Reconciler: reconciler,
		Metrics:    m,
		Router:     router,
	}, cleanup, nil
}
