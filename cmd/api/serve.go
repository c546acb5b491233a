package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveSeedDemo bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the outbox relay",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().BoolVar(&serveSeedDemo, "seed-demo", false, "seed a demo directory when running on the in-memory store")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx, bootstrapOptions{migrate: true})
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.logger

	authService := app.authService()
	if serveSeedDemo {
		if app.pg.Pool() != nil {
			return errors.New("--seed-demo only applies to the in-memory store")
		}
		if err := seedDemo(ctx, app, authService); err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
	}

	dispatcher := events.NewInMemoryDispatcher()
	lifecycle := app.lifecycle(dispatcher)
	relay, err := app.relay()
	if err != nil {
		return err
	}
	worker.StartNotificationWorker(dispatcher, service.NewNotificationService(dispatcher, logger, app.metrics), relay)

	deps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if app.pg.Pool() != nil {
		deps["postgres"] = app.pg
	}
	if app.redis.Enabled() {
		deps["redis"] = app.redis
	}

	server := fiber.New(fiber.Config{
		AppName:               app.cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, app.metrics, app.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(app.cfg.App.Name, app.cfg.App.Version, deps, app.metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), app.store.Employees()),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", app.cfg.App.Addr()))
		return server.Listen(app.cfg.App.Addr())
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return server.ShutdownWithTimeout(shutdownTimeout)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// seedDemo fills an empty in-memory store with one area, one customer and an
// employee of each role, all sharing the password "changeme123".
func seedDemo(ctx context.Context, app *application, authService *service.AuthService) error {
	area := &domain.Area{Name: "general"}
	if err := app.store.Areas().Create(ctx, area); err != nil {
		return err
	}
	external := &domain.Area{Name: "field-services", External: true}
	if err := app.store.Areas().Create(ctx, external); err != nil {
		return err
	}
	customer := &domain.Customer{Name: "Demo Customer", Email: "customer@example.com"}
	if err := app.store.Customers().Create(ctx, customer); err != nil {
		return err
	}
	phone := domain.ChannelPhone
	for _, input := range []service.RegisterEmployeeInput{
		{Name: "Frontline", Email: "frontline@example.com", Role: domain.RoleFrontline, Channel: &phone},
		{Name: "Backoffice", Email: "backoffice@example.com", Role: domain.RoleBackoffice, AreaIDs: []int64{area.ID}},
		{Name: "Oversight", Email: "oversight@example.com", Role: domain.RoleOversight},
	} {
		input.Password = "changeme123"
		if _, err := authService.RegisterEmployee(ctx, input); err != nil {
			return err
		}
	}
	app.logger.Info("demo directory seeded",
		zap.Int64("area_id", area.ID),
		zap.Int64("external_area_id", external.ID),
		zap.Int64("customer_id", customer.ID))
	return nil
}
