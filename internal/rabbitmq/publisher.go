package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionEvent announces the outcome of one execute call to downstream consumers
type ExecutionEvent struct {
	ID                  string    `json:"id"`
	Status              string    `json:"status"`
	Strategy            string    `json:"strategy"`
	ContactKey          string    `json:"contact_key"`
	Label               string    `json:"label"`
	JourneyDefinitionID string    `json:"journey_definition_id,omitempty"`
	JourneyVersion      string    `json:"journey_version,omitempty"`
	JourneyID           string    `json:"journey_id,omitempty"`
	JourneyName         string    `json:"journey_name,omitempty"`
	EventDate           time.Time `json:"event_date"`
	Error               string    `json:"error,omitempty"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// messagePublisher is the part of Connection the Publisher needs
type messagePublisher interface {
	PublishMessage(ctx context.Context, routingKey string, body []byte) error
}

// Publisher routes execution events as <routingKey>.<status>
type Publisher struct {
	conn       messagePublisher
	routingKey string
}

// NewPublisher creates a publisher sending events under routingKey
func NewPublisher(conn messagePublisher, routingKey string) *Publisher {
	return &Publisher{conn: conn, routingKey: routingKey}
}

// PublishExecution publishes event as JSON with routing key <routingKey>.<status>
func (p *Publisher) PublishExecution(ctx context.Context, event ExecutionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal execution event: %w", err)
	}
	return p.conn.PublishMessage(ctx, p.routingKey+"."+event.Status, body)
}
