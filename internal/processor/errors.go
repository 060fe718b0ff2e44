package processor

import (
	"errors"

	"reservations/internal/domain/reservation"
)

var (
	// ErrMalformed is permanent: the message goes to the dead-letter path and
	// never touches the ledger.
	ErrMalformed = reservation.ErrMalformed
	// ErrTransient is recoverable: the message stays redeliverable.
	ErrTransient = errors.New("transient failure")
	// ErrInjected is returned by the fault injector.
	ErrInjected = errors.New("injected failure")

	errConcurrentDuplicate = errors.New("ledger row inserted concurrently")
)
