package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope published for outcome events.
// Payload is kept as raw JSON produced by the emitting service.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	Producer      string          `json:"producer"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewMessage wraps payload in an envelope with a fresh id.
func NewMessage(eventType, correlationID, causationID, producer string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return &Message{
		ID:            uuid.NewString(),
		Type:          eventType,
		CorrelationID: correlationID,
		CausationID:   causationID,
		Producer:      producer,
		OccurredAt:    time.Now().UTC(),
		Payload:       data,
	}, nil
}
