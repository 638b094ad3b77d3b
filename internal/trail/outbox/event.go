package outbox

import (
	"encoding/json"
	"fmt"

	"attest/internal/trail/models"
)

// Event is the JSON payload written to the outbox in the capture transaction
// and later relayed to the event stream and activity feed. Consumers dedupe
// on the log ID; delivery is at-least-once.
type Event struct {
	Log     models.AuditLog         `json:"log"`
	Changes []models.AuditLogChange `json:"changes"`
}

// EncodeEvent marshals an event for the outbox payload column.
func EncodeEvent(log models.AuditLog, changes []models.AuditLogChange) ([]byte, error) {
	payload, err := json.Marshal(Event{Log: log, Changes: changes})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox event: %w", err)
	}
	return payload, nil
}

// DecodeEvent unmarshals an outbox or feed payload.
func DecodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal outbox event: %w", err)
	}
	return event, nil
}
