package handlers

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/descriptor"
	"github.com/marminbh/journey-logger-svc/internal/service"
)

// setupCheckTimeout bounds the deep data extension setup check
const setupCheckTimeout = 10 * time.Second

// ActivityHandler serves the activity's descriptor, UI entry point and setup check
type ActivityHandler struct {
	svc *service.Service
}

func NewActivityHandler(svc *service.Service) *ActivityHandler {
	return &ActivityHandler{svc: svc}
}

// Config handles GET /config.json. URLs are built from the Host header the
// canvas used to reach us.
func (h *ActivityHandler) Config(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(descriptor.Build(c.Hostname(), service.BasePath))
}

// Index handles GET /index.html
func (h *ActivityHandler) Index(c *fiber.Ctx) error {
	return c.SendFile(filepath.Join(h.svc.StaticDir, "html", "index.html"))
}

// RedirectIndex handles GET / under the activity prefix
func (h *ActivityHandler) RedirectIndex(c *fiber.Ctx) error {
	return c.Redirect(service.BasePath+"/index.html", fiber.StatusFound)
}

// CheckDataExtensionSetup handles GET /checkDataExtensionSetup.
// With ?deep=true it also proves the credentials work against the tenant.
func (h *ActivityHandler) CheckDataExtensionSetup(c *fiber.Ctx) error {
	if !c.QueryBool("deep", false) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "OK"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupCheckTimeout)
	defer cancel()

	if err := h.svc.Writer.Check(ctx); err != nil {
		h.svc.Logger.Warn("Data extension setup check failed",
			zap.String("strategy", h.svc.Writer.Name()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "ERROR",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "OK",
		"strategy": h.svc.Writer.Name(),
	})
}
