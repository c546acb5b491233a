package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

var errDatabaseRequired = errors.New("POSTGRES_DSN is required for this command")

// application holds the process-wide dependencies shared by every command.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	pg      *persistence.Postgres
	redis   *persistence.Redis
	store   repository.Store
	closers []func()
}

type bootstrapOptions struct {
	requireDatabase bool
	migrate         bool
}

func bootstrap(ctx context.Context, opts bootstrapOptions) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	app := &application{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	app.closers = append(app.closers, func() { _ = logger.Sync() })

	pg, err := persistence.OpenPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	app.pg = pg
	app.closers = append(app.closers, pg.Close)

	if pool := pg.Pool(); pool != nil {
		if opts.migrate && cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				app.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		app.store = repository.NewPostgresStore(pool)
	} else {
		if opts.requireDatabase {
			app.Close()
			return nil, errDatabaseRequired
		}
		logger.Warn("using in-memory store; data is lost on exit")
		app.store = memory.New()
	}

	app.redis = persistence.NewRedis(cfg.Redis, logger)
	app.closers = append(app.closers, app.redis.Close)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *application) selector() service.Selector {
	if a.cfg.Selector.Strategy != config.StrategyRoundRobin {
		return service.NewLeastLoadedSelector()
	}
	if a.redis.Enabled() {
		return service.NewRoundRobinSelector(a.redis)
	}
	a.logger.Warn("round robin cursor is process-local without redis")
	return service.NewRoundRobinSelector(service.NewMemoryCounter())
}

func (a *application) publisher() (events.Publisher, error) {
	switch a.cfg.Notification.Bus {
	case config.BusRedis:
		if !a.redis.Enabled() {
			return nil, errors.New("NOTIFY_BUS=redis requires REDIS_ADDR")
		}
		return events.NewRedisStreamPublisher(a.redis.Client, a.cfg.Notification.Stream, a.cfg.Notification.StreamMaxLen), nil
	case config.BusKafka:
		pub := events.NewKafkaPublisher(events.NewKafkaWriter(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic))
		a.closers = append(a.closers, func() { _ = pub.Close() })
		return pub, nil
	default:
		return service.NewSurveyConfirmingPublisher(a.store.Surveys(), events.NewLogPublisher(a.logger)), nil
	}
}

func (a *application) relay() (*worker.OutboxRelay, error) {
	pub, err := a.publisher()
	if err != nil {
		return nil, err
	}
	a.logger.Info("outbox relay configured", zap.String("bus", pub.Name()))
	return worker.NewOutboxRelay(worker.OutboxRelayDependencies{
		Outbox:    a.store.Outbox(),
		Publisher: pub,
		Logger:    a.logger,
		Metrics:   a.metrics,
		Interval:  a.cfg.Notification.RelayInterval(),
		BatchSize: a.cfg.Notification.RelayBatchSize,
	}), nil
}

func (a *application) lifecycle(dispatcher events.Dispatcher) *service.LifecycleService {
	return service.NewLifecycleService(service.LifecycleDependencies{
		Store:      a.store,
		Selector:   a.selector(),
		Dispatcher: dispatcher,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
}

func (a *application) authService() *service.AuthService {
	return service.NewAuthService(a.cfg.Auth, service.AuthDependencies{
		EmployeeRepo: a.store.Employees(),
		AreaRepo:     a.store.Areas(),
	})
}
