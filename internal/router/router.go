package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/interngate-api/internal/config"
	"github.com/noah-isme/interngate-api/internal/handler"
	"github.com/noah-isme/interngate-api/internal/middleware"
	"github.com/noah-isme/interngate-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler *handler.AssessmentHandler
	AuditHandler      *handler.AuditHandler
	SessionMiddleware fiber.Handler
	HealthProbes      map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Assessment routes never run without a session check.
	if deps.AssessmentHandler != nil && deps.SessionMiddleware != nil {
		assessments := api.Group("/assessment", deps.SessionMiddleware)
		deps.AssessmentHandler.Register(assessments)
	}

	if deps.AuditHandler != nil && deps.SessionMiddleware != nil {
		audit := api.Group("/admin/audit", deps.SessionMiddleware, middleware.RequireRole("admin"))
		deps.AuditHandler.Register(audit)
	}
}
