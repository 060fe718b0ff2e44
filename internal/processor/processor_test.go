package processor_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservations/internal/domain/reservation"
	"reservations/internal/infrastructure/sqlite"
	"reservations/internal/processor"
)

type recordingPublisher struct {
	mu   sync.Mutex
	outs []reservation.OutcomeEvent
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, out reservation.OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outs = append(p.outs, out)
	return p.err
}

func (p *recordingPublisher) published() []reservation.OutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]reservation.OutcomeEvent(nil), p.outs...)
}

type fixture struct {
	db        *sql.DB
	tx        *sqlite.TxManager
	ledger    *sqlite.LedgerRepository
	stock     *sqlite.InventoryRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewClient(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "inventory.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:        db,
		tx:        sqlite.NewTxManager(db),
		ledger:    sqlite.NewLedgerRepository(db),
		stock:     sqlite.NewInventoryRepository(db),
		publisher: &recordingPublisher{},
	}
	require.NoError(t, f.stock.Seed(ctx, map[string]int{
		"burger": 100, "pizza": 100, "sushi": 100, "taco": 100, "salad": 100,
	}))
	return f
}

func (f *fixture) processor(opts ...processor.Option) *processor.Processor {
	opts = append([]processor.Option{processor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return processor.New(f.tx, f.ledger, f.stock, f.publisher, opts...)
}

func (f *fixture) quantity(t *testing.T, item string) int {
	t.Helper()
	s, err := f.stock.Get(context.Background(), item)
	require.NoError(t, err)
	return s.QuantityAvailable
}

func (f *fixture) rows(t *testing.T) int64 {
	t.Helper()
	n, err := f.ledger.Count(context.Background())
	require.NoError(t, err)
	return n
}

// deliver handles raw and then publishes, the way the delivery loop does
// after acking.
func deliver(ctx context.Context, p *processor.Processor, raw []byte) processor.Result {
	res := p.Handle(ctx, raw)
	p.Publish(ctx, res)
	return res
}

func order(id, item string, qty int) []byte {
	return []byte(fmt.Sprintf(`{"event_id":%q,"item":%q,"quantity":%d,"occurred_at":"2026-10-18T10:00:00Z"}`, id, item, qty))
}

func TestHandle_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.processor()
	ctx := context.Background()

	first := deliver(ctx, p, order("ORD-1", "salad", 1))
	require.NoError(t, first.Err)
	assert.Equal(t, processor.Ack, first.Decision)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.Record)
	assert.Equal(t, reservation.OutcomeApplied, first.Record.Outcome)
	assert.Equal(t, "RES-ORD-1", first.Record.ReservationID)
	assert.Equal(t, 99, first.Record.Remaining)

	second := deliver(ctx, p, order("ORD-1", "salad", 1))
	require.NoError(t, second.Err)
	assert.Equal(t, processor.Ack, second.Decision)
	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Record)

	assert.Equal(t, 99, f.quantity(t, "salad"))
	assert.EqualValues(t, 1, f.rows(t))

	outs := f.publisher.published()
	require.Len(t, outs, 1)
	assert.Equal(t, reservation.ResultReserved, outs[0].Result)
	assert.Equal(t, "ORD-1", outs[0].EventID)
}

func TestHandle_LeavesPublishToCaller(t *testing.T) {
	f := newFixture(t)
	p := f.processor()
	ctx := context.Background()

	res := p.Handle(ctx, order("ORD-1", "burger", 2))
	require.Equal(t, processor.Ack, res.Decision)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, reservation.ResultReserved, res.Outcome.Result)
	assert.Equal(t, "RES-ORD-1", res.Outcome.ReservationID)
	assert.Empty(t, f.publisher.published())

	p.Publish(ctx, res)
	require.Len(t, f.publisher.published(), 1)

	dup := p.Handle(ctx, order("ORD-1", "burger", 2))
	assert.True(t, dup.Duplicate)
	assert.Nil(t, dup.Outcome)
	p.Publish(ctx, dup)
	assert.Len(t, f.publisher.published(), 1)
}

func TestHandle_InsufficientStockCommitsFailedRecord(t *testing.T) {
	f := newFixture(t)
	p := f.processor()

	res := deliver(context.Background(), p, order("ORD-BIG", "pizza", 101))
	require.NoError(t, res.Err)
	assert.Equal(t, processor.Ack, res.Decision)
	require.NotNil(t, res.Record)
	assert.Equal(t, reservation.OutcomeFailed, res.Record.Outcome)
	assert.Equal(t, reservation.ReasonInsufficientStock, res.Record.Reason)
	assert.Empty(t, res.Record.ReservationID)

	assert.Equal(t, 100, f.quantity(t, "pizza"))
	assert.EqualValues(t, 1, f.rows(t))

	rec, err := f.ledger.Get(context.Background(), "ORD-BIG")
	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeFailed, rec.Outcome)

	outs := f.publisher.published()
	require.Len(t, outs, 1)
	assert.Equal(t, reservation.ResultFailed, outs[0].Result)
	assert.Equal(t, reservation.ReasonInsufficientStock, outs[0].Reason)

	// Redelivery of a failed reservation is still a duplicate, not a retry.
	again := deliver(context.Background(), p, order("ORD-BIG", "pizza", 101))
	assert.Equal(t, processor.Ack, again.Decision)
	assert.True(t, again.Duplicate)
	assert.Len(t, f.publisher.published(), 1)
}

func TestHandle_UnknownItemIsBusinessFailure(t *testing.T) {
	f := newFixture(t)
	p := f.processor()

	res := deliver(context.Background(), p, order("ORD-2", "caviar", 1))
	require.NoError(t, res.Err)
	assert.Equal(t, processor.Ack, res.Decision)
	require.NotNil(t, res.Record)
	assert.Equal(t, reservation.ReasonItemNotFound, res.Record.Reason)
	assert.EqualValues(t, 1, f.rows(t))
}

func TestHandle_MalformedNeverTouchesStorage(t *testing.T) {
	f := newFixture(t)
	p := f.processor()

	for _, body := range []string{
		`{"request_id":"test-dlq-001","item":"pizza","qty":1}`,
		`{ broken json }`,
		`{"event_id":"ORD-3","item":"pizza","quantity":0}`,
	} {
		res := deliver(context.Background(), p, []byte(body))
		assert.Equal(t, processor.Reject, res.Decision, body)
		assert.ErrorIs(t, res.Err, processor.ErrMalformed, body)
	}

	assert.Zero(t, f.rows(t))
	assert.Equal(t, 100, f.quantity(t, "pizza"))
	assert.Empty(t, f.publisher.published())
}

func TestHandle_RollbackAfterDebitLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	faults, err := processor.NewFaults(processor.FaultConfig{FailureRate: 1})
	require.NoError(t, err)
	p := f.processor(processor.WithFaults(faults))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := deliver(ctx, p, order("ORD-1", "salad", 1))
		assert.Equal(t, processor.Requeue, res.Decision)
		assert.ErrorIs(t, res.Err, processor.ErrTransient)
		assert.ErrorIs(t, res.Err, processor.ErrInjected)
	}

	assert.Equal(t, 100, f.quantity(t, "salad"))
	assert.Zero(t, f.rows(t))
	assert.Empty(t, f.publisher.published())

	require.NoError(t, faults.Set(processor.FaultConfig{}))

	res := deliver(ctx, p, order("ORD-1", "salad", 1))
	assert.Equal(t, processor.Ack, res.Decision)
	res = deliver(ctx, p, order("ORD-1", "salad", 1))
	assert.True(t, res.Duplicate)

	assert.Equal(t, 99, f.quantity(t, "salad"))
	assert.EqualValues(t, 1, f.rows(t))
}

// failingCommit runs the work inside a real transaction and then fails as a
// commit would, so the underlying transaction is rolled back.
type failingCommit struct {
	inner processor.Transactor
}

func (f failingCommit) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.inner.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := fn(txCtx); err != nil {
			return err
		}
		return errors.New("commit: connection reset")
	})
}

func TestHandle_CommitFailureRequeues(t *testing.T) {
	f := newFixture(t)
	p := processor.New(failingCommit{inner: f.tx}, f.ledger, f.stock, f.publisher,
		processor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := deliver(context.Background(), p, order("ORD-1", "burger", 5))
	assert.Equal(t, processor.Requeue, res.Decision)
	assert.ErrorIs(t, res.Err, processor.ErrTransient)

	assert.Equal(t, 100, f.quantity(t, "burger"))
	assert.Zero(t, f.rows(t))
	assert.Empty(t, f.publisher.published())
}

// blindLedger never sees existing rows, as when two deliveries pass the
// dedup check before either commits.
type blindLedger struct {
	*sqlite.LedgerRepository
}

func (blindLedger) Exists(context.Context, string) (bool, error) { return false, nil }

func TestHandle_UniqueConstraintResolvesRace(t *testing.T) {
	f := newFixture(t)
	p := processor.New(f.tx, blindLedger{f.ledger}, f.stock, f.publisher,
		processor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	first := deliver(ctx, p, order("ORD-1", "taco", 2))
	assert.Equal(t, processor.Ack, first.Decision)
	assert.False(t, first.Duplicate)

	second := deliver(ctx, p, order("ORD-1", "taco", 2))
	assert.Equal(t, processor.Ack, second.Decision)
	assert.True(t, second.Duplicate)
	assert.NoError(t, second.Err)

	assert.Equal(t, 98, f.quantity(t, "taco"))
	assert.EqualValues(t, 1, f.rows(t))
	assert.Len(t, f.publisher.published(), 1)
}

func TestHandle_ConcurrentRedeliveries(t *testing.T) {
	f := newFixture(t)
	p := f.processor()

	var wg sync.WaitGroup
	results := make([]processor.Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = deliver(context.Background(), p, order("ORD-1", "sushi", 3))
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, res := range results {
		require.Equal(t, processor.Ack, res.Decision)
		if !res.Duplicate {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 97, f.quantity(t, "sushi"))
	assert.EqualValues(t, 1, f.rows(t))
}

func TestHandle_InterleavedDuplicatesMatchFirstDeliveries(t *testing.T) {
	f := newFixture(t)
	p := f.processor()
	ctx := context.Background()

	type delivery struct {
		id   string
		item string
		qty  int
	}
	var firsts []delivery
	for i := 0; i < 30; i++ {
		items := []string{"burger", "pizza", "salad"}
		firsts = append(firsts, delivery{fmt.Sprintf("ORD-%d", i), items[i%3], i%4 + 1})
	}

	stream := append([]delivery(nil), firsts...)
	for i := 0; i < 30; i += 2 {
		stream = append(stream, firsts[i], firsts[i])
	}
	r := rand.New(rand.NewSource(42))
	r.Shuffle(len(stream), func(i, j int) { stream[i], stream[j] = stream[j], stream[i] })

	for _, d := range stream {
		res := deliver(ctx, p, order(d.id, d.item, d.qty))
		require.Equal(t, processor.Ack, res.Decision)
	}

	want := map[string]int{"burger": 100, "pizza": 100, "salad": 100}
	for _, d := range firsts {
		want[d.item] -= d.qty
	}
	for item, qty := range want {
		assert.Equal(t, qty, f.quantity(t, item), item)
	}
	assert.EqualValues(t, len(firsts), f.rows(t))
	assert.Len(t, f.publisher.published(), len(firsts))
}

func TestHandle_PublishFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")
	p := f.processor()

	res := deliver(context.Background(), p, order("ORD-1", "salad", 1))
	assert.Equal(t, processor.Ack, res.Decision)
	assert.NoError(t, res.Err)
	assert.Equal(t, 99, f.quantity(t, "salad"))
	assert.EqualValues(t, 1, f.rows(t))
}

func TestHandle_InjectedDelayHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	faults, err := processor.NewFaults(processor.FaultConfig{Delay: time.Hour})
	require.NoError(t, err)
	p := f.processor(processor.WithFaults(faults))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := deliver(ctx, p, order("ORD-1", "salad", 1))
	assert.Equal(t, processor.Requeue, res.Decision)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Zero(t, f.rows(t))
}

func TestHandle_LegacyPayloadCarriesRequestID(t *testing.T) {
	f := newFixture(t)
	p := f.processor()

	res := deliver(context.Background(), p, []byte(`{"order_id":"ORD-9","request_id":"req-9","item":"burger","qty":2}`))
	require.Equal(t, processor.Ack, res.Decision)

	outs := f.publisher.published()
	require.Len(t, outs, 1)
	assert.Equal(t, "req-9", outs[0].RequestID)
	require.NotNil(t, outs[0].Remaining)
	assert.Equal(t, 98, *outs[0].Remaining)
}

func TestFaultConfig_Validate(t *testing.T) {
	assert.Error(t, processor.FaultConfig{FailureRate: 1.5}.Validate())
	assert.Error(t, processor.FaultConfig{FailureRate: -0.1}.Validate())
	assert.Error(t, processor.FaultConfig{Delay: -time.Second}.Validate())
	assert.NoError(t, processor.FaultConfig{Delay: time.Second, FailureRate: 0.5}.Validate())

	faults, err := processor.NewFaults(processor.FaultConfig{})
	require.NoError(t, err)
	assert.Error(t, faults.Set(processor.FaultConfig{FailureRate: 2}))
	assert.Equal(t, processor.FaultConfig{}, faults.Config())
}
