package usecase

import (
	"context"
	"fmt"

	"reservations/internal/domain/reservation"
)

type LedgerReader interface {
	Get(ctx context.Context, eventID string) (*reservation.LedgerRecord, error)
	Count(ctx context.Context) (int64, error)
}

type LedgerSummary struct {
	Records int64 `json:"records"`
}

type GetLedger struct {
	repo LedgerReader
}

func NewGetLedger(repo LedgerReader) *GetLedger {
	return &GetLedger{repo: repo}
}

// Record returns reservation.ErrRecordNotFound when no delivery of eventID has committed.
func (uc *GetLedger) Record(ctx context.Context, eventID string) (*reservation.LedgerRecord, error) {
	rec, err := uc.repo.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get ledger record: %w", err)
	}
	return rec, nil
}

func (uc *GetLedger) Summary(ctx context.Context) (*LedgerSummary, error) {
	n, err := uc.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count ledger: %w", err)
	}
	return &LedgerSummary{Records: n}, nil
}
