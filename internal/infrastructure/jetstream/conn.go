package jetstream

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Config struct {
	URL string

	// Live queue: work-queue retention, one durable pull consumer.
	Stream  string
	Subject string
	Durable string

	DLQStream  string
	DLQSubject string

	OutcomeStream   string
	ReservedSubject string
	FailedSubject   string

	AckWait     time.Duration
	PollTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		Stream:          "RESERVATIONS",
		Subject:         "orders.placed",
		Durable:         "inventory-service",
		DLQStream:       "RESERVATIONS_DLQ",
		DLQSubject:      "orders.dlq",
		OutcomeStream:   "INVENTORY",
		ReservedSubject: "inventory.reserved",
		FailedSubject:   "inventory.failed",
		AckWait:         30 * time.Second,
		PollTimeout:     2 * time.Second,
	}
}

// Connection holds the NATS connection and its JetStream context.
type Connection struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg Config
}

// Connect dials NATS and makes sure streams and the durable consumer exist.
func Connect(cfg Config, opts ...nats.Option) (*Connection, error) {
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "NATS JetStream: connection failed %q", cfg.URL)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "NATS JetStream: connection failed %q", cfg.URL)
	}

	c := &Connection{nc: nc, js: js, cfg: cfg}
	if err := c.ensureTopology(); err != nil {
		nc.Close()
		return nil, err
	}

	return c, nil
}

func (c *Connection) JetStreamContext() nats.JetStreamContext {
	return c.js
}

func (c *Connection) Config() Config {
	return c.cfg
}

// Close drains the connection so in-flight acks reach the server.
func (c *Connection) Close() error {
	return c.nc.Drain()
}

func (c *Connection) ensureTopology() error {
	streams := []*nats.StreamConfig{
		{
			Name:      c.cfg.Stream,
			Subjects:  []string{c.cfg.Subject},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		},
		{
			Name:     c.cfg.DLQStream,
			Subjects: []string{c.cfg.DLQSubject},
			Storage:  nats.FileStorage,
		},
		{
			Name:       c.cfg.OutcomeStream,
			Subjects:   []string{c.cfg.ReservedSubject, c.cfg.FailedSubject},
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
	}
	for _, sc := range streams {
		if err := c.addStream(sc); err != nil {
			return err
		}
	}

	return c.addConsumer()
}

func (c *Connection) addStream(sc *nats.StreamConfig) error {
	si, err := c.js.StreamInfo(sc.Name)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return errors.Wrapf(err, "NATS JetStream: stream info %q", sc.Name)
		}
		if _, err := c.js.AddStream(sc); err != nil {
			return errors.Wrapf(err, "NATS JetStream: add stream %q", sc.Name)
		}
		return nil
	}

	missing := false
	for _, want := range sc.Subjects {
		if !contains(si.Config.Subjects, want) {
			si.Config.Subjects = append(si.Config.Subjects, want)
			missing = true
		}
	}
	if !missing {
		return nil
	}
	if _, err := c.js.UpdateStream(&si.Config); err != nil {
		return errors.Wrapf(err, "NATS JetStream: update stream %q", sc.Name)
	}
	return nil
}

func (c *Connection) addConsumer() error {
	_, err := c.js.ConsumerInfo(c.cfg.Stream, c.cfg.Durable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return errors.Wrapf(err, "NATS JetStream: consumer info %q", c.cfg.Durable)
	}

	_, err = c.js.AddConsumer(c.cfg.Stream, &nats.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    -1,
		MaxAckPending: 1,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	})
	if err != nil {
		var apiErr *nats.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeConsumerNameExists {
			return nil
		}
		return errors.Wrapf(err, "NATS JetStream: add consumer %q", c.cfg.Durable)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
