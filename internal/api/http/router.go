package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Any authenticated employee may read;
// only frontline and backoffice handlers change tickets.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Auth.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/assignments", cfg.Tickets.ListAssignments)

	mutate := auth.RequireHolder()
	tickets.Post("/", mutate, cfg.Tickets.CreateTicket)
	tickets.Post("/:id/escalate", mutate, cfg.Tickets.Escalate)
	tickets.Post("/:id/derive", mutate, cfg.Tickets.Derive)
	tickets.Post("/:id/return", mutate, cfg.Tickets.Return)
	tickets.Post("/:id/close", mutate, cfg.Tickets.Close)
}
