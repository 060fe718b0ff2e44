package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// HeaderEventType names the envelope type on outcome messages.
const HeaderEventType = "event-type"

type Config struct {
	Brokers []string
	Topic   string
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

func (p *Producer) SendMessage(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	err := p.writer.WriteMessages(ctx,
		kafka.Message{
			Key:     key,
			Value:   value,
			Headers: headers,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write message to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Send writes an outcome envelope keyed by event id.
func (p *Producer) Send(ctx context.Context, key, eventType string, value []byte) error {
	return p.SendMessage(ctx, []byte(key), value, kafka.Header{Key: HeaderEventType, Value: []byte(eventType)})
}

func (p *Producer) GetTopic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
