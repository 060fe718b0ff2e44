package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"reservations/internal/consumer"
	"reservations/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset applies when the group has no committed offset: "earliest" (default) or "latest".
	StartOffset string
}

// StartOffset maps the configured name to a kafka-go offset.
func StartOffset(name string) int64 {
	if strings.EqualFold(strings.TrimSpace(name), "latest") {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

// Consumer reads one partition assignment in order and commits offsets only
// after a message is settled. Kafka cannot hand a single offset back to the
// broker, so a requeued message is held and re-presented by the next Fetch.
type Consumer struct {
	reader *kafka.Reader
	dlq    *Producer
	topic  string

	mu      sync.Mutex
	pending *delivery
}

func NewConsumer(cfg ConsumerConfig, dlq *Producer) *Consumer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false, // Force IPv4
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,    // Process immediately
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		Dialer:         dialer,
		StartOffset:    StartOffset(cfg.StartOffset),
		CommitInterval: 0, // synchronous commits
	})
	return &Consumer{reader: r, dlq: dlq, topic: cfg.Topic}
}

func (c *Consumer) Fetch(ctx context.Context) (consumer.Delivery, error) {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p != nil {
		if err := waitUntil(ctx, p.notBefore); err != nil {
			c.mu.Lock()
			c.pending = p
			c.mu.Unlock()
			return nil, err
		}
		return p, nil
	}

	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", c.topic, err)
	}

	return &delivery{consumer: c, msg: msg, attempt: 1}, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

type delivery struct {
	consumer  *Consumer
	msg       kafka.Message
	attempt   int
	notBefore time.Time
}

func (d *delivery) Body() []byte { return d.msg.Value }
func (d *delivery) Attempt() int { return d.attempt }

func (d *delivery) Ack(ctx context.Context) error {
	if err := d.consumer.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", d.msg.Offset, err)
	}
	return nil
}

func (d *delivery) DeadLetter(ctx context.Context, reason string, cause error) error {
	if d.consumer.dlq == nil {
		return errors.New("no dead-letter topic configured")
	}

	var errMsg string
	if cause != nil {
		errMsg = cause.Error()
	}
	dl := event.NewDeadLetter(d.msg.Topic, reason, errMsg, d.attempt, d.msg.Value)
	dl.Partition = d.msg.Partition
	dl.Offset = d.msg.Offset

	value, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := d.consumer.dlq.SendMessage(ctx, d.msg.Key, value,
		kafka.Header{Key: event.HeaderDeadLetterReason, Value: []byte(reason)}); err != nil {
		return err
	}

	return d.Ack(ctx)
}

func (d *delivery) Requeue(_ context.Context, delay time.Duration) error {
	next := &delivery{
		consumer:  d.consumer,
		msg:       d.msg,
		attempt:   d.attempt + 1,
		notBefore: time.Now().Add(delay),
	}

	d.consumer.mu.Lock()
	d.consumer.pending = next
	d.consumer.mu.Unlock()
	return nil
}

func waitUntil(ctx context.Context, t time.Time) error {
	wait := time.Until(t)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
