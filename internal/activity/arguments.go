package activity

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// In-argument keys recognized on execute
const (
	KeyContactKey          = "contactKey"
	KeyJourneyDefinitionID = "journeyDefinitionId"
	KeyJourneyVersion      = "journeyVersion"
	KeyJourneyID           = "journeyId"
	KeyJourneyName         = "journeyName"
	KeyLabel               = "label"
)

// InArguments is the ordered list of argument bundles the platform sends
// on execute. Bundles may overlap; the first one holding a key wins.
type InArguments []map[string]any

// Lookup returns the value of key from the first bundle that contains it.
// A key that is present with a null value still counts as found.
func (a InArguments) Lookup(key string) (any, bool) {
	for _, bundle := range a {
		if v, ok := bundle[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// String looks up key and renders scalar values as text. Objects and
// arrays are rendered as compact JSON.
func (a InArguments) String(key string) (string, bool) {
	v, ok := a.Lookup(key)
	if !ok {
		return "", false
	}
	return stringify(v), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// ExecuteRequest is the body the platform posts to the execute endpoint
type ExecuteRequest struct {
	InArguments          InArguments `json:"inArguments"`
	OutArguments         []any       `json:"outArguments,omitempty"`
	ActivityObjectID     string      `json:"activityObjectID,omitempty"`
	JourneyID            string      `json:"journeyId,omitempty"`
	ActivityID           string      `json:"activityId,omitempty"`
	DefinitionInstanceID string      `json:"definitionInstanceId,omitempty"`
	ActivityInstanceID   string      `json:"activityInstanceId,omitempty"`
	KeyValue             string      `json:"keyValue,omitempty"`
	Mode                 any         `json:"mode,omitempty"`
}

// LifecycleRequest is the loosely typed body of save, publish, validate and stop
type LifecycleRequest struct {
	ActivityObjectID     string `json:"activityObjectID,omitempty"`
	InteractionID        string `json:"interactionId,omitempty"`
	OriginalDefinitionID string `json:"originalDefinitionId,omitempty"`
	InteractionKey       string `json:"interactionKey,omitempty"`
	InteractionVersion   string `json:"interactionVersion,omitempty"`
}
