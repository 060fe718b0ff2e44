package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reservations/internal/consumer"
	"reservations/internal/domain/event"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Source pulls one message at a time from the durable consumer.
type Source struct {
	conn *Connection
	sub  *nats.Subscription
}

func NewSource(c *Connection) (*Source, error) {
	sub, err := c.js.PullSubscribe(c.cfg.Subject, c.cfg.Durable, nats.Bind(c.cfg.Stream, c.cfg.Durable))
	if err != nil {
		return nil, errors.Wrapf(err, "NATS JetStream: pull subscribe %q", c.cfg.Durable)
	}
	return &Source{conn: c, sub: sub}, nil
}

func (s *Source) Fetch(ctx context.Context) (consumer.Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pollCtx, cancel := context.WithTimeout(ctx, s.conn.cfg.PollTimeout)
		msgs, err := s.sub.Fetch(1, nats.Context(pollCtx))
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return nil, errors.Wrap(err, "NATS JetStream: fetch")
		}
		if len(msgs) == 0 {
			continue
		}

		return newDelivery(s.conn, msgs[0]), nil
	}
}

func (s *Source) Close() error {
	return s.sub.Unsubscribe()
}

type delivery struct {
	conn    *Connection
	msg     *nats.Msg
	attempt int
	seq     uint64
}

func newDelivery(c *Connection, msg *nats.Msg) *delivery {
	d := &delivery{conn: c, msg: msg, attempt: 1}
	if md, err := msg.Metadata(); err == nil {
		d.attempt = int(md.NumDelivered)
		d.seq = md.Sequence.Stream
	}
	return d
}

func (d *delivery) Body() []byte { return d.msg.Data }
func (d *delivery) Attempt() int { return d.attempt }

func (d *delivery) Ack(ctx context.Context) error {
	return errors.Wrap(d.msg.AckSync(nats.Context(ctx)), "NATS JetStream: ack")
}

func (d *delivery) Requeue(_ context.Context, delay time.Duration) error {
	return errors.Wrap(d.msg.NakWithDelay(delay), "NATS JetStream: nak")
}

// DeadLetter publishes the envelope to the holding stream and then terminates
// the live message so it is never redelivered.
func (d *delivery) DeadLetter(ctx context.Context, reason string, cause error) error {
	var errMsg string
	if cause != nil {
		errMsg = cause.Error()
	}
	dl := event.NewDeadLetter(d.msg.Subject, reason, errMsg, d.attempt, d.msg.Data)
	dl.Offset = int64(d.seq)

	data, err := json.Marshal(dl)
	if err != nil {
		return errors.Wrap(err, "NATS JetStream: marshal dead letter")
	}

	out := nats.NewMsg(d.conn.cfg.DLQSubject)
	out.Header.Set(event.HeaderDeadLetterReason, reason)
	out.Data = data

	opts := []nats.PubOpt{nats.Context(ctx)}
	if d.seq > 0 {
		// A retried dead-letter of the same stream message is dropped by the server.
		opts = append(opts, nats.MsgId(fmt.Sprintf("%s-%d", d.conn.cfg.Stream, d.seq)))
	}
	if _, err := d.conn.js.PublishMsg(out, opts...); err != nil {
		return errors.Wrap(err, "NATS JetStream: publish dead letter")
	}

	return errors.Wrap(d.msg.Term(nats.Context(ctx)), "NATS JetStream: term")
}
