package consumer

import (
	"context"
	"time"
)

// Delivery is one message handed out by a Source. Exactly one of Ack,
// DeadLetter or Requeue settles it.
type Delivery interface {
	Body() []byte
	// Attempt is 1 on first delivery.
	Attempt() int
	Ack(ctx context.Context) error
	// DeadLetter moves the message to the holding area, then removes it from the live queue.
	DeadLetter(ctx context.Context, reason string, cause error) error
	// Requeue makes the message redeliverable no sooner than delay.
	Requeue(ctx context.Context, delay time.Duration) error
}

// Source blocks until the next message is available or ctx is done.
type Source interface {
	Fetch(ctx context.Context) (Delivery, error)
}
