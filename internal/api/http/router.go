package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/report-router/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Metrics *handlers.MetricsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets")
	tickets.Get("/open", cfg.Tickets.ListOpen)
	tickets.Get("/:id", cfg.Tickets.GetTicket)

	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Snapshot)
	}
}
