package reservation

import "time"

// Result is the downstream-facing result of a reservation.
type Result string

const (
	ResultReserved Result = "reserved"
	ResultFailed   Result = "failed"
)

// Event types used in the outcome envelope.
const (
	EventTypeReserved = "InventoryReserved"
	EventTypeFailed   = "InventoryFailed"
)

// OutcomeEvent is derived 1:1 from a committed LedgerRecord.
type OutcomeEvent struct {
	EventID       string    `json:"event_id"`
	Result        Result    `json:"result"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Item          string    `json:"item"`
	Quantity      int       `json:"quantity"`
	Remaining     *int      `json:"remaining,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	CommittedAt   time.Time `json:"committed_at"`
}

// NewOutcomeEvent builds the outcome for a committed record.
func NewOutcomeEvent(rec LedgerRecord, requestID string) OutcomeEvent {
	out := OutcomeEvent{
		EventID:     rec.EventID,
		Item:        rec.Item,
		Quantity:    rec.Quantity,
		RequestID:   requestID,
		CommittedAt: rec.CommittedAt,
	}

	if rec.Outcome == OutcomeApplied {
		remaining := rec.Remaining
		out.Result = ResultReserved
		out.ReservationID = rec.ReservationID
		out.Remaining = &remaining
		return out
	}

	out.Result = ResultFailed
	out.Reason = rec.Reason
	return out
}

// EventType returns the envelope type for the outcome.
func (o OutcomeEvent) EventType() string {
	if o.Result == ResultReserved {
		return EventTypeReserved
	}
	return EventTypeFailed
}
