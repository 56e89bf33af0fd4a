package events

import (
	"time"

	"github.com/google/uuid"
)

// Safety review event types. Payloads carry labels and rule names, never message text.
const (
	TypeSchemaViolation    = "safety.schema_violation"
	TypeGenerationFallback = "safety.generation_fallback"
	TypeRiskDowngrade      = "safety.risk_downgrade"
)

// NewReviewEvent stamps data with an event id and the thread it belongs to.
func NewReviewEvent(eventType, threadId string, data map[string]interface{}, at time.Time) BaseEvent {
	payload := make(map[string]interface{}, len(data)+3)
	for k, v := range data {
		payload[k] = v
	}
	payload["event_id"] = uuid.NewString()
	payload["thread_id"] = threadId
	payload["occurred_at"] = at.UTC().Format(time.RFC3339)

	return BaseEvent{
		Type:       eventType,
		Data:       payload,
		OccurredAt: at,
	}
}
