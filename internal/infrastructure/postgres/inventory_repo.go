package postgres

import (
	"context"
	"errors"
	"fmt"

	"reservations/internal/domain/inventory"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Reserve debits quantity from item and returns the remaining stock.
// The row lock taken by the UPDATE is held until the surrounding transaction ends.
func (r *InventoryRepository) Reserve(ctx context.Context, item string, quantity int) (int, error) {
	const sql = `
		UPDATE inventory
		SET quantity_available = quantity_available - $2, updated_at = NOW()
		WHERE item = $1 AND quantity_available >= $2
		RETURNING quantity_available
	`

	ex := conn(ctx, r.pool)

	var remaining int
	err := ex.QueryRow(ctx, sql, item, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit stock: %w", err)
	}

	var exists bool
	if err := ex.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory WHERE item = $1)`, item).Scan(&exists); err != nil {
		return 0, fmt.Errorf("lookup stock: %w", err)
	}
	if !exists {
		return 0, inventory.ErrItemNotFound
	}

	return 0, inventory.ErrInsufficientStock
}

// Seed inserts items that do not exist yet. Existing stock is left untouched.
func (r *InventoryRepository) Seed(ctx context.Context, stock map[string]int) error {
	batch := &pgx.Batch{}
	for item, qty := range stock {
		batch.Queue(`
			INSERT INTO inventory (item, quantity_available, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (item) DO NOTHING
		`, item, qty)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stock {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("seed inventory: %w", err)
		}
	}

	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, item string) (*inventory.Stock, error) {
	s := &inventory.Stock{}
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT item, quantity_available FROM inventory WHERE item = $1`, item).Scan(&s.Item, &s.QuantityAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, inventory.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return s, nil
}

func (r *InventoryRepository) List(ctx context.Context) ([]*inventory.Stock, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT item, quantity_available FROM inventory ORDER BY item ASC`)
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	defer rows.Close()

	var items []*inventory.Stock
	for rows.Next() {
		s := &inventory.Stock{}
		if err := rows.Scan(&s.Item, &s.QuantityAvailable); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		items = append(items, s)
	}

	return items, rows.Err()
}
