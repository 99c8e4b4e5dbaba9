package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/skora-go-api/internal/config"
	"github.com/noah-isme/skora-go-api/internal/handler"
	"github.com/noah-isme/skora-go-api/internal/middleware"
	"github.com/noah-isme/skora-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler *handler.GradingHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	if deps.GradingHandler != nil {
		grading := api.Group("/grading")
		grading.Use("/grade", middleware.RateLimit("grading_trigger", cfg.TriggerRateLimit, cfg.TriggerRateWindow))
		deps.GradingHandler.Register(grading)
	}
}
