package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"reservations/internal/config"
	"reservations/internal/consumer"
	"reservations/internal/infrastructure/jetstream"
	"reservations/internal/infrastructure/kafka"
	"reservations/internal/infrastructure/postgres"
	"reservations/internal/infrastructure/redis"
	"reservations/internal/infrastructure/sqlite"
	"reservations/internal/outcome"
	"reservations/internal/processor"
	"reservations/internal/usecase"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
)

type LedgerStore interface {
	processor.Ledger
	usecase.LedgerReader
}

type InventoryStore interface {
	processor.Inventory
	usecase.StockReader
	Seed(ctx context.Context, stock map[string]int) error
}

// Store is the ledger and inventory pair sharing one transaction boundary.
type Store struct {
	Tx        processor.Transactor
	Ledger    LedgerStore
	Inventory InventoryStore
}

// Transport is the Log as seen by the consumer.
type Transport struct {
	Source    consumer.Source
	Sender    outcome.Sender
	Inspector usecase.DepthInspector
}

type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	pgPool     *pgxpool.Pool
	sqliteDB   *sql.DB
	stockCache *redis.StockCache
	natsConn   *jetstream.Connection
	closers    []func() error
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
			MaxConns: f.cfg.Postgres.MaxConns,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres, retrying in 2s", "attempt", i+1, "max", 5, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) SQLite(ctx context.Context) (*sql.DB, error) {
	if f.sqliteDB != nil {
		return f.sqliteDB, nil
	}

	db, err := sqlite.NewClient(ctx, sqlite.Config{Path: f.cfg.Store.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("failed to init sqlite: %w", err)
	}

	f.sqliteDB = db
	return db, nil
}

// Store builds the repositories for the configured driver.
func (f *Factory) Store(ctx context.Context) (*Store, error) {
	switch f.cfg.Store.Driver {
	case "postgres":
		pool, err := f.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		return &Store{
			Tx:        postgres.NewTxManager(pool),
			Ledger:    postgres.NewLedgerRepository(pool),
			Inventory: postgres.NewInventoryRepository(pool),
		}, nil
	default:
		db, err := f.SQLite(ctx)
		if err != nil {
			return nil, err
		}
		return &Store{
			Tx:        sqlite.NewTxManager(db),
			Ledger:    sqlite.NewLedgerRepository(db),
			Inventory: sqlite.NewInventoryRepository(db),
		}, nil
	}
}

// StockCache is nil without error when no redis address is configured.
func (f *Factory) StockCache(ctx context.Context) (usecase.StockCache, error) {
	if f.stockCache != nil {
		return f.stockCache, nil
	}
	if f.cfg.Redis.Addr == "" {
		return nil, nil
	}

	cache, err := redis.Connect(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
		StockTTL: f.cfg.Redis.StockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.stockCache = cache
	return cache, nil
}

func (f *Factory) NATS() (*jetstream.Connection, error) {
	if f.natsConn != nil {
		return f.natsConn, nil
	}

	n := f.cfg.NATS
	conn, err := jetstream.Connect(jetstream.Config{
		URL:             n.URL,
		Stream:          n.Stream,
		Subject:         n.Subject,
		Durable:         n.Durable,
		DLQStream:       n.DLQStream,
		DLQSubject:      n.DLQSubject,
		OutcomeStream:   n.OutcomeStream,
		ReservedSubject: n.ReservedSubject,
		FailedSubject:   n.FailedSubject,
		AckWait:         n.AckWait,
		PollTimeout:     2 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	f.natsConn = conn
	return conn, nil
}

// Transport builds the source, outcome sender and depth inspector.
func (f *Factory) Transport() (*Transport, error) {
	if f.cfg.Transport.Kind == "nats" {
		conn, err := f.NATS()
		if err != nil {
			return nil, err
		}
		src, err := jetstream.NewSource(conn)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, src.Close)
		return &Transport{
			Source:    src,
			Sender:    jetstream.NewPublisher(conn),
			Inspector: jetstream.NewInspector(conn),
		}, nil
	}

	k := f.cfg.Kafka
	dlq := kafka.NewProducer(kafka.Config{Brokers: k.Brokers, Topic: k.DLQTopic})
	out := kafka.NewProducer(kafka.Config{Brokers: k.Brokers, Topic: k.OutcomeTopic})
	src := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     k.Brokers,
		Topic:       k.Topic,
		GroupID:     k.GroupID,
		StartOffset: k.StartOffset,
	}, dlq)
	f.closers = append(f.closers, src.Close, dlq.Close, out.Close)

	return &Transport{
		Source:    src,
		Sender:    out,
		Inspector: f.kafkaInspector(),
	}, nil
}

// Inspector builds only the depth inspector, for read-only tools.
func (f *Factory) Inspector() (usecase.DepthInspector, error) {
	if f.cfg.Transport.Kind == "nats" {
		conn, err := f.NATS()
		if err != nil {
			return nil, err
		}
		return jetstream.NewInspector(conn), nil
	}
	return f.kafkaInspector(), nil
}

func (f *Factory) kafkaInspector() *kafka.Inspector {
	k := f.cfg.Kafka
	return kafka.NewInspector(k.Brokers, k.Topic, k.DLQTopic, k.GroupID)
}

func (f *Factory) Close() {
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			f.logger.Warn("failed to close resource", "error", err)
		}
	}
	if f.natsConn != nil {
		_ = f.natsConn.Close()
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.sqliteDB != nil {
		f.sqliteDB.Close()
	}
	if f.stockCache != nil {
		_ = f.stockCache.Close()
	}
}
