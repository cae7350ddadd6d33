package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/marminbh/journey-logger-svc/internal/models"
)

// AttemptStore persists execution attempts in PostgreSQL
type AttemptStore struct {
	db *gorm.DB
}

func NewAttemptStore(db *gorm.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// Record inserts one attempt row
func (s *AttemptStore) Record(ctx context.Context, attempt *models.ExecutionAttempt) error {
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to insert execution attempt: %w", err)
	}
	return nil
}

// List returns attempts newest first. It fetches one extra row to tell the
// caller whether more rows exist past limit.
func (s *AttemptStore) List(ctx context.Context, contactKey string, limit, offset int) ([]models.ExecutionAttempt, bool, error) {
	var attempts []models.ExecutionAttempt
	if err := s.listQuery(ctx, contactKey, limit, offset).Find(&attempts).Error; err != nil {
		return nil, false, fmt.Errorf("failed to query execution attempts: %w", err)
	}

	attempts, hasMore := page(attempts, limit)
	return attempts, hasMore, nil
}

func (s *AttemptStore) listQuery(ctx context.Context, contactKey string, limit, offset int) *gorm.DB {
	query := s.db.WithContext(ctx).
		Model(&models.ExecutionAttempt{}).
		Order("created_at DESC").
		Limit(limit + 1).
		Offset(offset)
	if contactKey != "" {
		query = query.Where("contact_key = ?", contactKey)
	}
	return query
}

// page trims a limit+1 fetch back to limit rows and reports whether the
// extra row was present
func page(attempts []models.ExecutionAttempt, limit int) ([]models.ExecutionAttempt, bool) {
	if len(attempts) > limit {
		return attempts[:limit], true
	}
	return attempts, false
}

// Ping checks the underlying connection
func (s *AttemptStore) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.db)
}
