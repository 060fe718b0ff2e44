package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reservations/internal/domain/reservation"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT 1 FROM ledger WHERE event_id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

// Append returns true if the record was saved (is new), false if a row for
// the event id already existed.
func (r *LedgerRepository) Append(ctx context.Context, rec reservation.LedgerRecord) (bool, error) {
	const query = `
		INSERT INTO ledger (event_id, item, quantity, outcome, reason, reservation_id, remaining, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`

	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		rec.EventID, rec.Item, rec.Quantity, string(rec.Outcome), rec.Reason, rec.ReservationID, rec.Remaining, rec.CommittedAt)
	if err != nil {
		return false, fmt.Errorf("insert ledger record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert ledger record: %w", err)
	}

	return n > 0, nil
}

func (r *LedgerRepository) Get(ctx context.Context, eventID string) (*reservation.LedgerRecord, error) {
	const query = `
		SELECT event_id, item, quantity, outcome, reason, reservation_id, remaining, committed_at
		FROM ledger
		WHERE event_id = ?
	`

	var (
		rec     reservation.LedgerRecord
		outcome string
	)
	err := conn(ctx, r.db).QueryRowContext(ctx, query, eventID).Scan(
		&rec.EventID, &rec.Item, &rec.Quantity, &outcome, &rec.Reason, &rec.ReservationID, &rec.Remaining, &rec.CommittedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	if err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}
