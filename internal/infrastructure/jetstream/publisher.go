package jetstream

import (
	"context"

	"reservations/internal/domain/reservation"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const headerEventType = "event-type"

// Publisher sends outcome envelopes to the outcome stream. The event id is
// used as the message id so the stream drops republished outcomes.
type Publisher struct {
	conn *Connection
}

func NewPublisher(c *Connection) *Publisher {
	return &Publisher{conn: c}
}

func (p *Publisher) Send(ctx context.Context, key, eventType string, value []byte) error {
	subject := p.conn.cfg.FailedSubject
	if eventType == reservation.EventTypeReserved {
		subject = p.conn.cfg.ReservedSubject
	}

	msg := nats.NewMsg(subject)
	msg.Header.Set(headerEventType, eventType)
	msg.Data = value

	if _, err := p.conn.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(key)); err != nil {
		return errors.Wrapf(err, "NATS JetStream: cannot send message to %q", subject)
	}
	return nil
}
