package inventory

import "errors"

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Stock is the mutable resource reservations are debited from.
// QuantityAvailable never drops below zero.
type Stock struct {
	Item              string `json:"item"`
	QuantityAvailable int    `json:"quantity_available"`
}
