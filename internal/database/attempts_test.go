package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marminbh/journey-logger-svc/internal/models"
)

// newDryRunStore builds SQL against the postgres dialect without a server
func newDryRunStore(t *testing.T) *AttemptStore {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	return NewAttemptStore(db)
}

func TestListQueryFetchesOneExtraRow(t *testing.T) {
	store := newDryRunStore(t)

	var attempts []models.ExecutionAttempt
	stmt := store.listQuery(context.Background(), "", 25, 50).Find(&attempts).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, `FROM "execution_attempts"`)
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT 26")
	assert.Contains(t, sql, "OFFSET 50")
	assert.NotContains(t, sql, "contact_key")
	assert.Empty(t, stmt.Vars)
}

func TestListQueryFiltersByContactKey(t *testing.T) {
	store := newDryRunStore(t)

	var attempts []models.ExecutionAttempt
	stmt := store.listQuery(context.Background(), "C1", 1, 0).Find(&attempts).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "WHERE contact_key = $1")
	assert.Contains(t, sql, "LIMIT 2")
	assert.Equal(t, []any{"C1"}, stmt.Vars)
}

func TestListDryRunReturnsEmptyPage(t *testing.T) {
	store := newDryRunStore(t)

	attempts, hasMore, err := store.List(context.Background(), "C1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.False(t, hasMore)
}

func TestPageTrimsExtraRow(t *testing.T) {
	rows := func(n int) []models.ExecutionAttempt {
		out := make([]models.ExecutionAttempt, n)
		for i := range out {
			out[i].ID = uuid.New()
		}
		return out
	}

	tests := []struct {
		name        string
		fetched     int
		limit       int
		wantLen     int
		wantHasMore bool
	}{
		{name: "extra row present", fetched: 4, limit: 3, wantLen: 3, wantHasMore: true},
		{name: "exactly limit", fetched: 3, limit: 3, wantLen: 3, wantHasMore: false},
		{name: "short page", fetched: 1, limit: 3, wantLen: 1, wantHasMore: false},
		{name: "empty", fetched: 0, limit: 3, wantLen: 0, wantHasMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetched := rows(tt.fetched)
			got, hasMore := page(fetched, tt.limit)
			assert.Len(t, got, tt.wantLen)
			assert.Equal(t, tt.wantHasMore, hasMore)
			if tt.wantLen > 0 {
				assert.Equal(t, fetched[0].ID, got[0].ID, "newest rows are kept")
			}
		})
	}
}
