package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/activity"
	"github.com/marminbh/journey-logger-svc/internal/service"
)

// LifecycleHandler answers the configuration lifecycle events.
// 200 accepts; any 3xx/4xx/5xx would block the journey from publishing.
type LifecycleHandler struct {
	svc *service.Service
}

func NewLifecycleHandler(svc *service.Service) *LifecycleHandler {
	return &LifecycleHandler{svc: svc}
}

// Save is called when a journey saves the activity
func (h *LifecycleHandler) Save(c *fiber.Ctx) error {
	return h.accept(c, "save")
}

// Publish is called when a journey is activated and starts admitting contacts
func (h *LifecycleHandler) Publish(c *fiber.Ctx) error {
	return h.accept(c, "publish")
}

// Validate is called before publish to check the configuration
func (h *LifecycleHandler) Validate(c *fiber.Ctx) error {
	return h.accept(c, "validate")
}

// Stop is called when a journey is stopped
func (h *LifecycleHandler) Stop(c *fiber.Ctx) error {
	return h.accept(c, "stop")
}

// accept logs the event and returns 200 {} for any payload.
// Configuration is validated on execute instead.
func (h *LifecycleHandler) accept(c *fiber.Ctx, event string) error {
	fields := []zap.Field{zap.String("event", event)}

	var req activity.LifecycleRequest
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err == nil {
			fields = append(fields,
				zap.String("activity_object_id", req.ActivityObjectID),
				zap.String("interaction_id", req.InteractionID),
			)
		}
	}
	h.svc.Logger.Debug("Lifecycle event received", fields...)

	if h.svc.Metrics != nil {
		h.svc.Metrics.LifecycleCalls.WithLabelValues(event).Inc()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{})
}
