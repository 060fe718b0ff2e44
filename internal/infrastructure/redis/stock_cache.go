package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reservations/internal/domain/inventory"

	"github.com/redis/go-redis/v9"
)

// StockCache keeps short-lived copies of stock rows for the read endpoints.
// The processor never reads from it.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	return &StockCache{client: client, ttl: ttl}
}

func (c *StockCache) Close() error {
	return c.client.Close()
}

func stockKey(item string) string {
	return fmt.Sprintf("stock:%s", item)
}

// Get returns false on a miss.
func (c *StockCache) Get(ctx context.Context, item string) (*inventory.Stock, bool, error) {
	val, err := c.client.Get(ctx, stockKey(item)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached stock: %w", err)
	}

	var s inventory.Stock
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, false, fmt.Errorf("decode cached stock: %w", err)
	}
	return &s, true, nil
}

func (c *StockCache) Set(ctx context.Context, s *inventory.Stock) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stock: %w", err)
	}
	if err := c.client.Set(ctx, stockKey(s.Item), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache stock: %w", err)
	}
	return nil
}
