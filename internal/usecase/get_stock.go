package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"reservations/internal/domain/inventory"
)

type StockReader interface {
	Get(ctx context.Context, item string) (*inventory.Stock, error)
	List(ctx context.Context) ([]*inventory.Stock, error)
}

type StockCache interface {
	Get(ctx context.Context, item string) (*inventory.Stock, bool, error)
	Set(ctx context.Context, s *inventory.Stock) error
}

// GetStock reads one item, served from the cache when a fresh copy exists.
type GetStock struct {
	cache StockCache
	repo  StockReader
}

// NewGetStock accepts a nil cache.
func NewGetStock(cache StockCache, repo StockReader) *GetStock {
	return &GetStock{
		cache: cache,
		repo:  repo,
	}
}

func (uc *GetStock) Execute(ctx context.Context, item string) (*inventory.Stock, error) {
	if uc.cache != nil {
		s, hit, err := uc.cache.Get(ctx, item)
		if err != nil {
			slog.Warn("stock cache read failed", "item", item, "error", err)
		} else if hit {
			return s, nil
		}
	}

	s, err := uc.repo.Get(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, s); err != nil {
			slog.Warn("stock cache write failed", "item", item, "error", err)
		}
	}

	return s, nil
}

type ListStock struct {
	repo StockReader
}

func NewListStock(repo StockReader) *ListStock {
	return &ListStock{repo: repo}
}

func (uc *ListStock) Execute(ctx context.Context) ([]*inventory.Stock, error) {
	items, err := uc.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return items, nil
}
