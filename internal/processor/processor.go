package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reservations/internal/domain/inventory"
	"reservations/internal/domain/reservation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "processor_events_total",
		Help: "Processed reservation events by result",
	}, []string{"result"})
	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "processor_transaction_duration_seconds",
		Help:    "Time spent inside the ledger and stock transaction",
		Buckets: prometheus.DefBuckets,
	})
)

// Decision tells the delivery loop what to do with the message.
type Decision int

const (
	// Ack removes the message from the log.
	Ack Decision = iota
	// Reject routes the message to the dead-letter holding area.
	Reject
	// Requeue leaves the message redeliverable.
	Requeue
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Result of handling one raw message.
type Result struct {
	Decision  Decision
	Duplicate bool
	// Record is set when this call committed a new ledger row.
	Record *reservation.LedgerRecord
	// Outcome is the event derived from Record, handed to Publish once the
	// message is acked.
	Outcome *reservation.OutcomeEvent
	Err     error
}

// Transactor runs fn inside one storage transaction. The transaction travels
// in the context handed to fn.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger is the idempotency ledger. Append reports false when a row for the
// event id already exists.
type Ledger interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Append(ctx context.Context, rec reservation.LedgerRecord) (bool, error)
}

// Inventory is the effect store. Reserve returns inventory.ErrItemNotFound or
// inventory.ErrInsufficientStock for business failures.
type Inventory interface {
	Reserve(ctx context.Context, item string, quantity int) (int, error)
}

// OutcomePublisher emits the derived outcome after the message is acked.
type OutcomePublisher interface {
	Publish(ctx context.Context, out reservation.OutcomeEvent) error
}

type Processor struct {
	tx        Transactor
	ledger    Ledger
	stock     Inventory
	publisher OutcomePublisher
	faults    *Faults
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithFaults(f *Faults) Option {
	return func(p *Processor) {
		p.faults = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// New builds a processor. publisher may be nil, in which case no outcome is emitted.
func New(tx Transactor, ledger Ledger, stock Inventory, publisher OutcomePublisher, opts ...Option) *Processor {
	p := &Processor{
		tx:        tx,
		ledger:    ledger,
		stock:     stock,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs one message through validate, dedup, apply, record and commit.
// The decision is Ack only once the transaction has committed. Handle never
// publishes; the caller acks first and then passes the result to Publish.
//
// The injected delay observes ctx. The transaction runs detached from ctx so
// shutdown never abandons it halfway.
func (p *Processor) Handle(ctx context.Context, raw []byte) Result {
	ev, err := reservation.Parse(raw)
	if err != nil {
		eventsProcessed.WithLabelValues("malformed").Inc()
		p.logger.Warn("rejecting malformed event", "error", err)
		return Result{Decision: Reject, Err: err}
	}

	if err := p.faults.Wait(ctx); err != nil {
		return p.requeue(ev, fmt.Errorf("injected delay: %w", err))
	}

	var (
		committed *reservation.LedgerRecord
		duplicate bool
	)

	started := time.Now()
	err = p.tx.WithinTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		committed, duplicate = nil, false

		seen, err := p.ledger.Exists(txCtx, ev.EventID)
		if err != nil {
			return fmt.Errorf("check ledger: %w", err)
		}
		if seen {
			duplicate = true
			return nil
		}

		rec, err := p.apply(txCtx, ev)
		if err != nil {
			return err
		}

		if err := p.faults.Trip(); err != nil {
			return err
		}

		inserted, err := p.ledger.Append(txCtx, rec)
		if err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		if !inserted {
			// Another delivery of the same event committed first; roll back our debit.
			return errConcurrentDuplicate
		}

		committed = &rec
		return nil
	})
	applyDuration.Observe(time.Since(started).Seconds())

	if errors.Is(err, errConcurrentDuplicate) {
		committed, duplicate, err = nil, true, nil
	}
	if err != nil {
		return p.requeue(ev, err)
	}

	if duplicate {
		eventsProcessed.WithLabelValues("duplicate").Inc()
		p.logger.Info("duplicate event acknowledged", "event_id", ev.EventID)
		return Result{Decision: Ack, Duplicate: true}
	}

	eventsProcessed.WithLabelValues(string(committed.Outcome)).Inc()
	p.logger.Info("reservation committed",
		"event_id", committed.EventID,
		"item", committed.Item,
		"quantity", committed.Quantity,
		"outcome", committed.Outcome,
		"reason", committed.Reason,
		"remaining", committed.Remaining,
	)

	out := reservation.NewOutcomeEvent(*committed, ev.RequestID)
	return Result{Decision: Ack, Record: committed, Outcome: &out}
}

// apply debits stock. Business failures produce a failed record, never an error.
func (p *Processor) apply(ctx context.Context, ev reservation.Event) (reservation.LedgerRecord, error) {
	rec := reservation.LedgerRecord{
		EventID:     ev.EventID,
		Item:        ev.Item,
		Quantity:    ev.Quantity,
		CommittedAt: p.now().UTC(),
	}

	remaining, err := p.stock.Reserve(ctx, ev.Item, ev.Quantity)
	switch {
	case err == nil:
		rec.Outcome = reservation.OutcomeApplied
		rec.ReservationID = reservation.ReservationID(ev.EventID)
		rec.Remaining = remaining
	case errors.Is(err, inventory.ErrInsufficientStock):
		rec.Outcome = reservation.OutcomeFailed
		rec.Reason = reservation.ReasonInsufficientStock
	case errors.Is(err, inventory.ErrItemNotFound):
		rec.Outcome = reservation.OutcomeFailed
		rec.Reason = reservation.ReasonItemNotFound
	default:
		return rec, fmt.Errorf("reserve stock: %w", err)
	}

	return rec, nil
}

// Publish emits the outcome of a committed result. Duplicates, rejects and
// requeues carry no outcome and are ignored. A failure is logged; the ledger
// commit stands regardless.
func (p *Processor) Publish(ctx context.Context, res Result) {
	if p.publisher == nil || res.Outcome == nil {
		return
	}
	if err := p.publisher.Publish(ctx, *res.Outcome); err != nil {
		p.logger.Error("failed to publish outcome", "event_id", res.Outcome.EventID, "result", res.Outcome.Result, "error", err)
	}
}

func (p *Processor) requeue(ev reservation.Event, err error) Result {
	eventsProcessed.WithLabelValues("transient").Inc()
	p.logger.Warn("transient failure, requeueing", "event_id", ev.EventID, "error", err)
	return Result{Decision: Requeue, Err: fmt.Errorf("%w: %w", ErrTransient, err)}
}
