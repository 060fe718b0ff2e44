package reservation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed marks a payload that can never be processed.
var ErrMalformed = errors.New("malformed event")

// wireEvent accepts both the canonical field names and the legacy order_id/qty
// spelling used by the order producers. A canonical field that is present,
// even as "" or null, wins over its alias.
type wireEvent struct {
	EventID    json.RawMessage `json:"event_id"`
	OrderID    json.RawMessage `json:"order_id"`
	Item       *string         `json:"item"`
	Quantity   json.RawMessage `json:"quantity"`
	Qty        json.RawMessage `json:"qty"`
	RequestID  string          `json:"request_id"`
	OccurredAt *time.Time      `json:"occurred_at"`
}

// Parse decodes and validates a raw message body. Every error it returns wraps
// ErrMalformed.
func Parse(raw []byte) (Event, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Event{}, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	id, err := parseEventID(pick(w.EventID, w.OrderID))
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	item := ""
	if w.Item != nil {
		item = strings.TrimSpace(*w.Item)
	}
	if item == "" {
		return Event{}, fmt.Errorf("%w: missing item", ErrMalformed)
	}

	qty, err := parseQuantity(pick(w.Quantity, w.Qty))
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ev := Event{
		EventID:   id,
		Item:      item,
		Quantity:  qty,
		RequestID: w.RequestID,
	}
	if w.OccurredAt != nil {
		ev.OccurredAt = *w.OccurredAt
	}

	return ev, nil
}

// pick returns the canonical value when the field was present at all.
func pick(canonical, alias json.RawMessage) json.RawMessage {
	if len(canonical) > 0 {
		return canonical
	}
	return alias
}

func parseEventID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return "", errors.New("missing event_id")
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("event_id %s is not a string", raw)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("empty event_id")
	}

	return id, nil
}

// parseQuantity only accepts a bare JSON integer token greater than zero.
func parseQuantity(raw json.RawMessage) (int, error) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return 0, errors.New("missing quantity")
	}

	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("quantity %s is not an integer", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("quantity %d must be positive", n)
	}

	return int(n), nil
}
