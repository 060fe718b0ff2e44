package jetstream

import (
	"context"

	"reservations/internal/domain/queue"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Inspector struct {
	conn *Connection
}

func NewInspector(c *Connection) *Inspector {
	return &Inspector{conn: c}
}

// Depths reads stream state. On a work-queue stream every stored message is
// either waiting or unacknowledged.
func (i *Inspector) Depths(ctx context.Context) (queue.Depths, error) {
	d := queue.Depths{Transport: "nats"}
	cfg := i.conn.cfg

	live, err := i.conn.js.StreamInfo(cfg.Stream, nats.Context(ctx))
	if err != nil {
		return d, errors.Wrapf(err, "NATS JetStream: stream info %q", cfg.Stream)
	}
	d.Live = int64(live.State.Msgs)

	ci, err := i.conn.js.ConsumerInfo(cfg.Stream, cfg.Durable, nats.Context(ctx))
	if err != nil {
		return d, errors.Wrapf(err, "NATS JetStream: consumer info %q", cfg.Durable)
	}
	d.InFlight = int64(ci.NumAckPending)

	dead, err := i.conn.js.StreamInfo(cfg.DLQStream, nats.Context(ctx))
	if err != nil {
		return d, errors.Wrapf(err, "NATS JetStream: stream info %q", cfg.DLQStream)
	}
	d.DeadLetter = int64(dead.State.Msgs)

	return d, nil
}
