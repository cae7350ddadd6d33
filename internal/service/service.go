package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/metrics"
	"github.com/marminbh/journey-logger-svc/internal/models"
	"github.com/marminbh/journey-logger-svc/internal/rabbitmq"
	"github.com/marminbh/journey-logger-svc/internal/writer"
)

// BasePath is the URL prefix of every activity route
const BasePath = "/modules/journey-logger"

// AttemptStore persists and lists execution attempts
type AttemptStore interface {
	Record(ctx context.Context, attempt *models.ExecutionAttempt) error
	List(ctx context.Context, contactKey string, limit, offset int) ([]models.ExecutionAttempt, bool, error)
}

// EventPublisher announces execution outcomes
type EventPublisher interface {
	PublishExecution(ctx context.Context, event rabbitmq.ExecutionEvent) error
}

// HealthCheck reports the state of one dependency
type HealthCheck func(ctx context.Context) error

// Service holds all application dependencies.
// Attempts and Events are nil when their backing stores are not configured.
type Service struct {
	Logger    *zap.Logger
	Writer    writer.Writer
	Metrics   *metrics.Metrics
	Attempts  AttemptStore
	Events    EventPublisher
	Health    map[string]HealthCheck
	StaticDir string
	Now       func() time.Time
}

// NewService creates a new service instance with the required dependencies
func NewService(logger *zap.Logger, w writer.Writer, m *metrics.Metrics) *Service {
	return &Service{
		Logger:  logger,
		Writer:  w,
		Metrics: m,
		Health:  make(map[string]HealthCheck),
		Now:     time.Now,
	}
}
