package postgres

import (
	"context"
	"errors"
	"fmt"

	"reservations/internal/domain/reservation"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return exists, nil
}

// Append returns true if the record was saved (is new), false if it already existed.
// A concurrent insert of the same event id blocks on the unique key until the
// other transaction finishes, then reports false.
func (r *LedgerRepository) Append(ctx context.Context, rec reservation.LedgerRecord) (bool, error) {
	const query = `
		INSERT INTO ledger (event_id, item, quantity, outcome, reason, reservation_id, remaining, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query,
		rec.EventID, rec.Item, rec.Quantity, string(rec.Outcome), rec.Reason, rec.ReservationID, rec.Remaining, rec.CommittedAt)
	if err != nil {
		return false, fmt.Errorf("insert ledger record: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *LedgerRepository) Get(ctx context.Context, eventID string) (*reservation.LedgerRecord, error) {
	const query = `
		SELECT event_id, item, quantity, outcome, reason, reservation_id, remaining, committed_at
		FROM ledger
		WHERE event_id = $1
	`

	var (
		rec     reservation.LedgerRecord
		outcome string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, query, eventID).Scan(
		&rec.EventID, &rec.Item, &rec.Quantity, &outcome, &rec.Reason, &rec.ReservationID, &rec.Remaining, &rec.CommittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, reservation.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger record: %w", err)
	}
	rec.Outcome = reservation.Outcome(outcome)

	return &rec, nil
}

func (r *LedgerRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}
