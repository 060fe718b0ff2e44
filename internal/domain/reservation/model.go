package reservation

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned when no ledger row exists for an event id.
var ErrRecordNotFound = errors.New("ledger record not found")

// Outcome is the result recorded in the ledger for a processed event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
)

// Failure reasons for business-rule failures.
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonItemNotFound      = "item_not_found"
)

// Event is a "reserve inventory for order X" request as received from the log.
type Event struct {
	EventID    string    `json:"event_id"`
	Item       string    `json:"item"`
	Quantity   int       `json:"quantity"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// ReservationID derives the reservation identifier for an applied event.
func ReservationID(eventID string) string {
	return "RES-" + eventID
}

// LedgerRecord is the single, append-only row kept for every processed event.
type LedgerRecord struct {
	EventID       string    `json:"event_id"`
	Item          string    `json:"item"`
	Quantity      int       `json:"quantity"`
	Outcome       Outcome   `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Remaining     int       `json:"remaining"`
	CommittedAt   time.Time `json:"committed_at"`
}
