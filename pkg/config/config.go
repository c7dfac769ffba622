// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Search, Logging, Metrics, Redis, Kafka, Postgres).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ReadErrorPolicy names what a worker does when a discovered document cannot
// be read at tokenization time.
type ReadErrorPolicy string

const (
	// ReadErrorFail aborts the whole build on the first unreadable document.
	ReadErrorFail ReadErrorPolicy = "fail"
	// ReadErrorSkip logs a warning and continues with the next document.
	ReadErrorSkip ReadErrorPolicy = "skip"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// IndexerConfig controls the build pipeline: where postings live, how many
// workers consume the queue and how deep the queue is.
type IndexerConfig struct {
	DataDir         string          `yaml:"dataDir"`
	Workers         int             `yaml:"workers"`
	QueueSize       int             `yaml:"queueSize"`
	ProgressEvery   int             `yaml:"progressEvery"`
	ReadErrorPolicy ReadErrorPolicy `yaml:"readErrorPolicy"`
	IgnoreFile      string          `yaml:"ignoreFile"`
}

// SearchConfig controls query evaluation.
type SearchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			DataDir:         "index",
			Workers:         10,
			QueueSize:       100,
			ProgressEvery:   100,
			ReadErrorPolicy: ReadErrorFail,
		},
		Search: SearchConfig{
			Concurrency: 8,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "textindex",
			User:            "textindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// Validate rejects values the build pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.Workers <= 0 {
		return invalid("indexer.workers must be positive, got %d", c.Indexer.Workers)
	}
	if c.Indexer.QueueSize <= 0 {
		return invalid("indexer.queueSize must be positive, got %d", c.Indexer.QueueSize)
	}
	if c.Indexer.ProgressEvery < 0 {
		return invalid("indexer.progressEvery must not be negative, got %d", c.Indexer.ProgressEvery)
	}
	switch c.Indexer.ReadErrorPolicy {
	case ReadErrorFail, ReadErrorSkip:
	default:
		return invalid("indexer.readErrorPolicy must be %q or %q, got %q",
			ReadErrorFail, ReadErrorSkip, c.Indexer.ReadErrorPolicy)
	}
	if c.Search.Concurrency <= 0 {
		return invalid("search.concurrency must be positive, got %d", c.Search.Concurrency)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers must not be empty when kafka is enabled")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperrors.New(apperrors.KindConfig, "validate config", "",
		fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, fmt.Sprintf(format, args...)))
}

// applyEnvOverrides reads TI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TI_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("TI_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("TI_INDEXER_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.QueueSize = n
		}
	}
	if v := os.Getenv("TI_INDEXER_READ_ERROR_POLICY"); v != "" {
		cfg.Indexer.ReadErrorPolicy = ReadErrorPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("TI_INDEXER_IGNORE_FILE"); v != "" {
		cfg.Indexer.IgnoreFile = v
	}
	if v := os.Getenv("TI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TI_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("TI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("TI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("TI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("TI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
}
