package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reservations/internal/domain/event"
	"reservations/internal/processor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_total",
		Help: "The total number of settled messages by decision",
	}, []string{"decision"})
	deadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_dead_letters_total",
		Help: "Messages moved to the dead-letter holding area by reason",
	}, []string{"reason"})
	requeues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_requeues_total",
		Help: "Messages left redeliverable after a transient failure",
	})
	currentAttempt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consumer_delivery_attempt",
		Help: "Delivery attempt of the message being processed",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to process and settle one message",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Handler decides the fate of one raw message. Publish is called with the
// result of Handle after an Ack decision has been settled with the Log.
type Handler interface {
	Handle(ctx context.Context, raw []byte) processor.Result
	Publish(ctx context.Context, res processor.Result)
}

type Runner struct {
	source  Source
	handler Handler
	policy  RetryPolicy
	logger  *slog.Logger
	// fetchBackoff is the pause after a failed fetch.
	fetchBackoff time.Duration
}

func NewRunner(source Source, handler Handler, policy RetryPolicy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:       source,
		handler:      handler,
		policy:       policy,
		logger:       logger,
		fetchBackoff: time.Second,
	}
}

// Run consumes until ctx is cancelled. A message already fetched is still
// settled with the Log after cancellation.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("consumer started", "max_attempts", r.policy.MaxAttempts, "backoff", r.policy.Backoff)

	for {
		d, err := r.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("consumer stopped")
				return nil
			}
			r.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				r.logger.Info("consumer stopped")
				return nil
			case <-time.After(r.fetchBackoff):
			}
			continue
		}

		_ = r.HandleDelivery(ctx, d)
	}
}

// HandleDelivery processes one delivery, settles it, and for an Ack publishes
// the outcome afterwards. Processing and publishing observe ctx; settling uses
// a context detached from it.
func (r *Runner) HandleDelivery(ctx context.Context, d Delivery) error {
	started := time.Now()
	defer func() { processingDuration.Observe(time.Since(started).Seconds()) }()

	attempt := d.Attempt()
	currentAttempt.Set(float64(attempt))

	res := r.safeHandle(ctx, d.Body())
	settleCtx := context.WithoutCancel(ctx)

	switch res.Decision {
	case processor.Ack:
		messagesHandled.WithLabelValues("ack").Inc()
		ackErr := d.Ack(settleCtx)
		if ackErr != nil {
			// The ledger row already exists; redelivery will be acked as a duplicate.
			r.logger.Error("failed to ack message", "error", ackErr)
		}
		// A duplicate redelivery never carries the outcome, so it goes out now
		// even when the ack failed.
		r.handler.Publish(ctx, res)
		if ackErr != nil {
			return fmt.Errorf("ack: %w", ackErr)
		}
		return nil

	case processor.Reject:
		return r.deadLetter(settleCtx, d, event.ReasonMalformed, res.Err)

	default:
		if r.policy.Exhausted(attempt) {
			r.logger.Error("retries exhausted", "attempt", attempt, "error", res.Err)
			return r.deadLetter(settleCtx, d, event.ReasonRetriesExhausted, res.Err)
		}
		return r.requeue(settleCtx, d, r.policy.Delay(attempt))
	}
}

func (r *Runner) deadLetter(ctx context.Context, d Delivery, reason string, cause error) error {
	if err := d.DeadLetter(ctx, reason, cause); err != nil {
		r.logger.Error("failed to dead-letter message, requeueing", "reason", reason, "error", err)
		if rerr := r.requeue(ctx, d, r.policy.Delay(d.Attempt())); rerr != nil {
			return errors.Join(err, rerr)
		}
		return fmt.Errorf("dead-letter: %w", err)
	}

	messagesHandled.WithLabelValues("reject").Inc()
	deadLetters.WithLabelValues(reason).Inc()
	r.logger.Warn("message dead-lettered", "reason", reason, "attempt", d.Attempt(), "error", cause)
	return nil
}

func (r *Runner) requeue(ctx context.Context, d Delivery, delay time.Duration) error {
	messagesHandled.WithLabelValues("requeue").Inc()
	requeues.Inc()
	if err := d.Requeue(ctx, delay); err != nil {
		r.logger.Error("failed to requeue message", "error", err)
		return fmt.Errorf("requeue: %w", err)
	}
	return nil
}

func (r *Runner) safeHandle(ctx context.Context, body []byte) (res processor.Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while handling message", "panic", p)
			res = processor.Result{
				Decision: processor.Requeue,
				Err:      fmt.Errorf("%w: panic: %v", processor.ErrTransient, p),
			}
		}
	}()
	return r.handler.Handle(ctx, body)
}
