package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"reservations/internal/domain/event"
	"reservations/internal/domain/reservation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcome_events_published_total",
		Help: "The total number of outcome events published downstream",
	}, []string{"type"})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outcome_publish_errors_total",
		Help: "The total number of failed outcome publish attempts",
	})
)

// Sender writes one encoded envelope to the downstream transport.
type Sender interface {
	Send(ctx context.Context, key, eventType string, value []byte) error
}

type Config struct {
	Producer    string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Publisher wraps outcomes in the event envelope and sends them with bounded retry.
type Publisher struct {
	sender Sender
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPublisher(sender Sender, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Producer == "" {
		cfg.Producer = "inventory-service"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		sleep:  sleep,
	}
}

func (p *Publisher) Publish(ctx context.Context, out reservation.OutcomeEvent) error {
	msg, err := event.NewMessage(out.EventType(), out.EventID, out.EventID, p.cfg.Producer, out)
	if err != nil {
		return err
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		err = p.sender.Send(sendCtx, out.EventID, msg.Type, value)
		cancel()

		if err == nil {
			eventsPublished.WithLabelValues(msg.Type).Inc()
			return nil
		}

		publishErrors.Inc()
		if attempt >= p.cfg.MaxAttempts {
			return fmt.Errorf("publish %s for %s after %d attempts: %w", msg.Type, out.EventID, attempt, err)
		}

		backoff := p.cfg.Backoff * time.Duration(1<<(attempt-1))
		p.logger.Warn("outcome publish failed, retrying",
			"event_id", out.EventID, "attempt", attempt, "backoff", backoff, "error", err)
		if err := p.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("publish %s for %s: %w", msg.Type, out.EventID, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
