package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStockTTL bounds how stale a cached stock row served by the read
// endpoints can be.
const DefaultStockTTL = time.Second

type Config struct {
	Addr     string
	Password string // optional
	DB       int    // optional
	// StockTTL defaults to DefaultStockTTL.
	StockTTL time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Connect dials redis and returns a stock cache that owns the connection.
// Close the cache to release it.
func Connect(ctx context.Context, cfg Config) (*StockCache, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ttl := cfg.StockTTL
	if ttl <= 0 {
		ttl = DefaultStockTTL
	}

	return NewStockCache(client, ttl), nil
}
