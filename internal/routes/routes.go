package routes

import (
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/marminbh/journey-logger-svc/internal/handlers"
	"github.com/marminbh/journey-logger-svc/internal/service"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, svc *service.Service) {
	health := handlers.NewHealthHandler(svc)
	act := handlers.NewActivityHandler(svc)
	lifecycle := handlers.NewLifecycleHandler(svc)
	execute := handlers.NewExecuteHandler(svc)
	executions := handlers.NewExecutionsHandler(svc)

	app.Get("/health", health.HealthCheck)
	if svc.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(svc.Metrics.Handler()))
	}

	mod := app.Group(service.BasePath)
	{
		// Static UI resources
		for _, dir := range []string{"dist", "images", "styles"} {
			mod.Static("/"+dir, filepath.Join(svc.StaticDir, dir))
		}

		mod.Get("/", act.RedirectIndex)
		mod.Get("/index.html", act.Index)
		mod.Get("/config.json", act.Config)
		mod.Get("/checkDataExtensionSetup", act.CheckDataExtensionSetup)
		mod.Get("/executions", executions.List)

		// Configuration lifecycle
		mod.Post("/save", lifecycle.Save)
		mod.Post("/publish", lifecycle.Publish)
		mod.Post("/validate", lifecycle.Validate)

		// Execution lifecycle
		mod.Post("/stop", lifecycle.Stop)
		mod.Post("/execute", execute.Execute)
	}
}
