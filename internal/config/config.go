package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Store     Store     `yaml:"store"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Transport Transport `yaml:"transport"`
	Kafka     Kafka     `yaml:"kafka"`
	NATS      NATS      `yaml:"nats"`
	Retry     Retry     `yaml:"retry"`
	Publish   Publish   `yaml:"publish"`
	Fault     Fault     `yaml:"fault"`
	Inventory Inventory `yaml:"inventory"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"inventory-service"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Store struct {
	// Driver is "sqlite" or "postgres".
	Driver     string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"inventory.db"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"inventory_db"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type Redis struct {
	// Addr left empty disables the stock read cache.
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	StockTTL time.Duration `yaml:"stock_ttl" env:"REDIS_STOCK_TTL" env-default:"1s"`
}

type Transport struct {
	// Kind is "kafka" or "nats".
	Kind string `yaml:"kind" env:"TRANSPORT" env-default:"kafka"`
}

type Kafka struct {
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic        string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"orders-events"`
	DLQTopic     string   `yaml:"dlq_topic" env:"KAFKA_DLQ_TOPIC" env-default:"orders-dlq"`
	OutcomeTopic string   `yaml:"outcome_topic" env:"KAFKA_OUTCOME_TOPIC" env-default:"inventory-events"`
	GroupID      string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"inventory-service"`
	StartOffset  string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
}

type NATS struct {
	URL             string        `yaml:"url" env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
	Stream          string        `yaml:"stream" env:"NATS_STREAM" env-default:"RESERVATIONS"`
	Subject         string        `yaml:"subject" env:"NATS_SUBJECT" env-default:"orders.placed"`
	Durable         string        `yaml:"durable" env:"NATS_DURABLE" env-default:"inventory-service"`
	DLQStream       string        `yaml:"dlq_stream" env:"NATS_DLQ_STREAM" env-default:"RESERVATIONS_DLQ"`
	DLQSubject      string        `yaml:"dlq_subject" env:"NATS_DLQ_SUBJECT" env-default:"orders.dlq"`
	OutcomeStream   string        `yaml:"outcome_stream" env:"NATS_OUTCOME_STREAM" env-default:"INVENTORY"`
	ReservedSubject string        `yaml:"reserved_subject" env:"NATS_RESERVED_SUBJECT" env-default:"inventory.reserved"`
	FailedSubject   string        `yaml:"failed_subject" env:"NATS_FAILED_SUBJECT" env-default:"inventory.failed"`
	AckWait         time.Duration `yaml:"ack_wait" env:"NATS_ACK_WAIT" env-default:"30s"`
}

type Retry struct {
	// MaxAttempts of 0 retries transient failures forever.
	MaxAttempts int           `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"0"`
	Backoff     time.Duration `yaml:"backoff" env:"RETRY_BACKOFF" env-default:"500ms"`
	MaxBackoff  time.Duration `yaml:"max_backoff" env:"RETRY_MAX_BACKOFF" env-default:"30s"`
}

type Publish struct {
	MaxAttempts int           `yaml:"max_attempts" env:"PUBLISH_MAX_ATTEMPTS" env-default:"5"`
	Backoff     time.Duration `yaml:"backoff" env:"PUBLISH_BACKOFF" env-default:"200ms"`
	Timeout     time.Duration `yaml:"timeout" env:"PUBLISH_TIMEOUT" env-default:"5s"`
}

type Fault struct {
	Delay       time.Duration `yaml:"delay" env:"FAULT_DELAY" env-default:"0s"`
	FailureRate float64       `yaml:"failure_rate" env:"FAULT_FAILURE_RATE" env-default:"0"`
}

type Inventory struct {
	// Seed is "item:qty" pairs separated by commas, inserted only when absent.
	Seed string `yaml:"seed" env:"INVENTORY_SEED" env-default:"burger:100,pizza:100,sushi:100,taco:100,salad:100"`
}

// SeedStock parses the seed list.
func (i Inventory) SeedStock() (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(i.Seed, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		item, qty, ok := strings.Cut(pair, ":")
		item = strings.TrimSpace(item)
		if !ok || item == "" {
			return nil, fmt.Errorf("inventory seed %q: want item:qty", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("inventory seed %q: quantity must be a non-negative integer", pair)
		}
		out[item] = n
	}
	return out, nil
}

// SlogLevel maps the configured level name, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	switch c.Transport.Kind {
	case "kafka", "nats":
	default:
		return fmt.Errorf("transport must be kafka or nats, got %q", c.Transport.Kind)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts must not be negative")
	}
	if c.Fault.FailureRate < 0 || c.Fault.FailureRate > 1 {
		return fmt.Errorf("fault failure_rate must be within [0, 1]")
	}
	if _, err := c.Inventory.SeedStock(); err != nil {
		return err
	}
	return nil
}

func New() (*Config, error) {
	return Load("config.yaml")
}

// Load reads path if it exists and lets env vars override it; without the
// file only env vars and defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
