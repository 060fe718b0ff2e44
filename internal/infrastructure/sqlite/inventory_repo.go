package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reservations/internal/domain/inventory"
)

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Reserve debits quantity from item and returns the remaining stock. The debit
// is conditional, so stock never goes negative.
func (r *InventoryRepository) Reserve(ctx context.Context, item string, quantity int) (int, error) {
	const query = `
		UPDATE inventory
		SET quantity_available = quantity_available - ?
		WHERE item = ? AND quantity_available >= ?
		RETURNING quantity_available
	`

	ex := conn(ctx, r.db)

	var remaining int
	err := ex.QueryRowContext(ctx, query, quantity, item, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit stock: %w", err)
	}

	var one int
	err = ex.QueryRowContext(ctx, `SELECT 1 FROM inventory WHERE item = ?`, item).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, inventory.ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup stock: %w", err)
	}

	return 0, inventory.ErrInsufficientStock
}

// Seed inserts items that do not exist yet. Existing stock is left untouched.
func (r *InventoryRepository) Seed(ctx context.Context, stock map[string]int) error {
	ex := conn(ctx, r.db)
	for item, qty := range stock {
		_, err := ex.ExecContext(ctx,
			`INSERT INTO inventory (item, quantity_available) VALUES (?, ?) ON CONFLICT (item) DO NOTHING`,
			item, qty)
		if err != nil {
			return fmt.Errorf("seed %s: %w", item, err)
		}
	}
	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, item string) (*inventory.Stock, error) {
	s := &inventory.Stock{}
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT item, quantity_available FROM inventory WHERE item = ?`, item).Scan(&s.Item, &s.QuantityAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return s, nil
}

func (r *InventoryRepository) List(ctx context.Context) ([]*inventory.Stock, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT item, quantity_available FROM inventory ORDER BY item ASC`)
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
