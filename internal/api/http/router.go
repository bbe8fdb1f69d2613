package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Owners         *handlers.OwnersHandler
	Policies       *handlers.PoliciesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/owners/register", cfg.Owners.Register)
	authGroup.Post("/owners/login", cfg.Owners.Login)

	policies := app.Group("/sla-policies", cfg.AuthMiddleware.Handle)
	policies.Get("/", cfg.Policies.List)
	// Must be registered before the :id routes so "check-breaches" is not
	// parsed as a policy id.
	policies.Get("/check-breaches", cfg.Policies.CheckBreaches)
	policies.Post("/", cfg.Policies.Create)
	policies.Get("/:id", cfg.Policies.Get)
	policies.Patch("/:id", cfg.Policies.Update)
	policies.Delete("/:id", cfg.Policies.Delete)
	policies.Post("/:id/toggle-active", cfg.Policies.ToggleActive)
}
