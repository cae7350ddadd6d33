package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/service"
)

const (
	defaultExecutionsLimit = 25
	maxExecutionsLimit     = 200
)

// ExecutionsHandler lists recent execution attempts from the attempt log
type ExecutionsHandler struct {
	svc *service.Service
}

func NewExecutionsHandler(svc *service.Service) *ExecutionsHandler {
	return &ExecutionsHandler{svc: svc}
}

// ExecutionsResponse represents the response structure for GET /executions
type ExecutionsResponse struct {
	Executions []ExecutionDTO `json:"executions"`
	HasMore    bool           `json:"has_more"`
}

// ExecutionDTO represents a single execution attempt in the response
type ExecutionDTO struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Strategy    string  `json:"strategy"`
	ContactKey  string  `json:"contact_key"`
	Label       string  `json:"label"`
	JourneyName string  `json:"journey_name"`
	HTTPStatus  *int    `json:"http_status"`
	LatencyMs   int     `json:"latency_ms"`
	Error       *string `json:"error"`
	EventDate   string  `json:"event_date"` // UTC ISO 8601 format
	Timestamp   string  `json:"timestamp"`  // UTC ISO 8601 format
}

// List handles GET /executions
// Query parameters:
//   - contact_key (optional): only attempts for this contact
//   - limit (optional, default 25, max 200): number of attempts to return
//   - offset (optional, default 0): number of attempts to skip
func (h *ExecutionsHandler) List(c *fiber.Ctx) error {
	if h.svc.Attempts == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "execution log is not enabled",
		})
	}

	limit := defaultExecutionsLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > maxExecutionsLimit {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be an integer between 1 and 200",
			})
		}
		limit = parsedLimit
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsedOffset, err := strconv.Atoi(offsetStr)
		if err != nil || parsedOffset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "offset must be a non-negative integer",
			})
		}
		offset = parsedOffset
	}

	attempts, hasMore, err := h.svc.Attempts.List(c.UserContext(), c.Query("contact_key"), limit, offset)
	if err != nil {
		h.svc.Logger.Error("Failed to query execution attempts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch executions",
		})
	}

	dtos := make([]ExecutionDTO, 0, len(attempts))
	for _, a := range attempts {
		dtos = append(dtos, ExecutionDTO{
			ID:          a.ID.String(),
			Status:      a.Status,
			Strategy:    a.Strategy,
			ContactKey:  a.ContactKey,
			Label:       a.Label,
			JourneyName: a.JourneyName,
			HTTPStatus:  a.HTTPStatus,
			LatencyMs:   a.LatencyMs,
			Error:       a.Error,
			EventDate:   a.EventDate.UTC().Format(time.RFC3339),
			Timestamp:   a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(ExecutionsResponse{
		Executions: dtos,
		HasMore:    hasMore,
	})
}
