package models

import (
	"time"

	"github.com/google/uuid"
)

// Attempt statuses
const (
	AttemptSucceeded = "succeeded"
	AttemptFailed    = "failed"
	AttemptRejected  = "rejected"
)

// ExecutionAttempt is one execute call as seen by this service
type ExecutionAttempt struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ContactKey          string    `gorm:"not null;default:''" json:"contact_key"`
	Label               string    `gorm:"not null;default:''" json:"label"`
	JourneyDefinitionID string    `gorm:"not null;default:''" json:"journey_definition_id"`
	JourneyVersion      string    `gorm:"not null;default:''" json:"journey_version"`
	JourneyID           string    `gorm:"not null;default:''" json:"journey_id"`
	JourneyName         string    `gorm:"not null;default:''" json:"journey_name"`
	ActivityInstanceID  string    `gorm:"not null;default:''" json:"activity_instance_id"`
	EventDate           time.Time `gorm:"not null" json:"event_date"`
	Strategy            string    `gorm:"not null" json:"strategy"`
	Status              string    `gorm:"not null" json:"status"`
	HTTPStatus          *int      `gorm:"type:integer" json:"http_status"`
	LatencyMs           int       `gorm:"not null;default:0" json:"latency_ms"`
	Error               *string   `gorm:"type:text" json:"error"`
	ResponseSummary     *string   `gorm:"type:text" json:"response_summary"`
	CreatedAt           time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ExecutionAttempt) TableName() string {
	return "execution_attempts"
}
