package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/activity"
	"github.com/marminbh/journey-logger-svc/internal/metrics"
	"github.com/marminbh/journey-logger-svc/internal/models"
	"github.com/marminbh/journey-logger-svc/internal/rabbitmq"
	"github.com/marminbh/journey-logger-svc/internal/service"
	"github.com/marminbh/journey-logger-svc/internal/writer"
)

// sideEffectTimeout bounds the attempt log insert and event publish
const sideEffectTimeout = 2 * time.Second

// ExecuteHandler processes one contact flowing through the journey.
// Any non-2xx response ejects the contact from the journey.
type ExecuteHandler struct {
	svc *service.Service
}

func NewExecuteHandler(svc *service.Service) *ExecuteHandler {
	return &ExecuteHandler{svc: svc}
}

// outcome collects what happened on one execute call for the side channels
type outcome struct {
	id      uuid.UUID
	req     activity.ExecuteRequest
	record  activity.ExecutionRecord
	status  string
	result  *writer.Result
	err     error
	latency time.Duration
}

// Execute handles POST /execute
func (h *ExecuteHandler) Execute(c *fiber.Ctx) error {
	id := uuid.New()
	c.Set("X-Execution-Id", id.String())
	logger := h.svc.Logger.With(zap.String("execution_id", id.String()))

	var req activity.ExecuteRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		logger.Warn("Malformed execute payload", zap.Error(err))
		h.count(metrics.OutcomeRejected)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request body must be a JSON object with inArguments",
		})
	}

	record, err := activity.NewExecutionRecord(req.InArguments, h.svc.Now())
	var verr *activity.ValidationError
	if errors.As(err, &verr) {
		logger.Warn("Execute rejected",
			zap.Strings("missing", verr.Fields),
			zap.String("activity_instance_id", req.ActivityInstanceID),
		)
		h.count(metrics.OutcomeRejected)
		h.after(outcome{id: id, req: req, record: record, status: models.AttemptRejected, err: err})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  verr.Error(),
			"fields": verr.Fields,
		})
	}

	start := time.Now()
	result, err := h.svc.Writer.Write(c.UserContext(), record)
	latency := time.Since(start)
	if h.svc.Metrics != nil {
		h.svc.Metrics.WriteDuration.WithLabelValues(h.svc.Writer.Name()).Observe(latency.Seconds())
	}

	if err != nil {
		logger.Error("Failed to write execution record",
			zap.String("contact_key", record.ContactKey),
			zap.String("label", record.Label),
			zap.String("strategy", h.svc.Writer.Name()),
			zap.Error(err),
		)
		h.count(metrics.OutcomeFailed)
		h.after(outcome{id: id, req: req, record: record, status: models.AttemptFailed, err: err, latency: latency})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "An error occurred",
		})
	}

	logger.Info("Execution recorded",
		zap.String("contact_key", record.ContactKey),
		zap.String("label", record.Label),
		zap.String("journey_definition_id", record.JourneyDefinitionID),
		zap.Duration("latency", latency),
	)
	h.count(metrics.OutcomeSucceeded)
	h.after(outcome{id: id, req: req, record: record, status: models.AttemptSucceeded, result: result, latency: latency})

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *ExecuteHandler) count(label string) {
	if h.svc.Metrics != nil {
		h.svc.Metrics.Executions.WithLabelValues(h.svc.Writer.Name(), label).Inc()
	}
}

// after records the attempt and publishes the outcome event. Failures are
// logged and never change the response.
func (h *ExecuteHandler) after(o outcome) {
	if h.svc.Attempts == nil && h.svc.Events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	var errMsg string
	if o.err != nil {
		errMsg = o.err.Error()
	}

	if h.svc.Attempts != nil {
		attempt := &models.ExecutionAttempt{
			ID:                  o.id,
			ContactKey:          o.record.ContactKey,
			Label:               o.record.Label,
			JourneyDefinitionID: o.record.JourneyDefinitionID,
			JourneyVersion:      o.record.JourneyVersion,
			JourneyID:           o.record.JourneyID,
			JourneyName:         o.record.JourneyName,
			ActivityInstanceID:  o.req.ActivityInstanceID,
			EventDate:           o.record.EventDate,
			Strategy:            h.svc.Writer.Name(),
			Status:              o.status,
			LatencyMs:           int(o.latency.Milliseconds()),
		}
		if errMsg != "" {
			attempt.Error = &errMsg
		}
		if o.result != nil {
			status := o.result.StatusCode
			summary := o.result.Summary
			attempt.HTTPStatus = &status
			attempt.ResponseSummary = &summary
		}
		if err := h.svc.Attempts.Record(ctx, attempt); err != nil {
			h.svc.Logger.Warn("Failed to record execution attempt",
				zap.String("execution_id", o.id.String()),
				zap.Error(err),
			)
		}
	}

	if h.svc.Events != nil {
		event := rabbitmq.ExecutionEvent{
			ID:                  o.id.String(),
			Status:              o.status,
			Strategy:            h.svc.Writer.Name(),
			ContactKey:          o.record.ContactKey,
			Label:               o.record.Label,
			JourneyDefinitionID: o.record.JourneyDefinitionID,
			JourneyVersion:      o.record.JourneyVersion,
			JourneyID:           o.record.JourneyID,
			JourneyName:         o.record.JourneyName,
			EventDate:           o.record.EventDate,
			Error:               errMsg,
			OccurredAt:          h.svc.Now().UTC(),
		}
		if err := h.svc.Events.PublishExecution(ctx, event); err != nil {
			h.svc.Logger.Warn("Failed to publish execution event",
				zap.String("execution_id", o.id.String()),
				zap.Error(err),
			)
		}
	}
}
