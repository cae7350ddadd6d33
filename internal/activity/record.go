package activity

import (
	"strings"
	"time"
)

// EventDateLayout matches the millisecond ISO 8601 form the data extension stores
const EventDateLayout = "2006-01-02T15:04:05.000Z07:00"

// ExecutionRecord is the single audit row written per execute call
type ExecutionRecord struct {
	ContactKey          string    `json:"contactKey"`
	Label               string    `json:"label"`
	EventDate           time.Time `json:"eventDate"`
	JourneyDefinitionID string    `json:"journeyDefinitionId"`
	JourneyVersion      string    `json:"journeyVersion"`
	JourneyID           string    `json:"journeyId,omitempty"`
	JourneyName         string    `json:"journeyName"`
}

// FormattedEventDate renders EventDate in UTC with millisecond precision
func (r ExecutionRecord) FormattedEventDate() string {
	return r.EventDate.UTC().Format(EventDateLayout)
}

// ValidationError lists the required in-arguments that were absent or empty
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required in-arguments: " + strings.Join(e.Fields, ", ")
}

// NewExecutionRecord builds the audit row from the in-arguments.
// contactKey and label are required; the journey metadata is optional.
func NewExecutionRecord(args InArguments, now time.Time) (ExecutionRecord, error) {
	var missing []string

	required := func(key string) string {
		v, ok := args.String(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
		return v
	}
	optional := func(key string) string {
		v, _ := args.String(key)
		return v
	}

	record := ExecutionRecord{
		ContactKey:          required(KeyContactKey),
		Label:               required(KeyLabel),
		EventDate:           now.UTC(),
		JourneyDefinitionID: optional(KeyJourneyDefinitionID),
		JourneyVersion:      optional(KeyJourneyVersion),
		JourneyID:           optional(KeyJourneyID),
		JourneyName:         optional(KeyJourneyName),
	}

	if len(missing) > 0 {
		return record, &ValidationError{Fields: missing}
	}
	return record, nil
}
