// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, RPC, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Vocab    VocabConfig    `yaml:"vocab"`
	RPC      RPCConfig      `yaml:"rpc"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	// RequestTimeout bounds a single resolve request; zero disables it.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// RateLimit is the number of resolve requests a client may make per
	// minute; zero disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexRequests   string `yaml:"indexRequests"`
	IndexResults    string `yaml:"indexResults"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// OpTimeout bounds one cache read or write; a slow read is a miss.
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// IndexerConfig controls how patterns are classified and how the index is
// built: worker pool size, work-unit size, lock stripes, and Unicode
// normalisation.
type IndexerConfig struct {
	// Glob enables wildcard interpretation. When false only exact matches
	// are resolved.
	Glob bool `yaml:"glob"`
	// Workers is the build pool size; -1 or 0 means GOMAXPROCS.
	Workers   int    `yaml:"workers"`
	ChunkSize int    `yaml:"chunkSize"`
	Shards    int    `yaml:"shards"`
	Normalize string `yaml:"normalize"`
	DataDir   string `yaml:"dataDir"`
}

// VocabConfig controls where named vocabularies live when PostgreSQL is
// disabled, and an optional directory of <name>.txt files kept imported.
type VocabConfig struct {
	BoltPath      string        `yaml:"boltPath"`
	WatchDir      string        `yaml:"watchDir"`
	WatchDebounce time.Duration `yaml:"watchDebounce"`
}

// RPCConfig controls the JSON-over-TCP RPC listener.
type RPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Indexer.Workers < -1 {
		return fmt.Errorf("indexer.workers must be -1, 0 or positive, got %d", c.Indexer.Workers)
	}
	if c.Indexer.ChunkSize < 0 {
		return fmt.Errorf("indexer.chunkSize must not be negative, got %d", c.Indexer.ChunkSize)
	}
	if c.Indexer.Shards < 0 {
		return fmt.Errorf("indexer.shards must not be negative, got %d", c.Indexer.Shards)
	}
	switch strings.ToLower(c.Indexer.Normalize) {
	case "", "none", "nfc", "nfd":
	default:
		return fmt.Errorf("indexer.normalize must be none, nfc or nfd, got %q", c.Indexer.Normalize)
	}
	return nil
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    32 << 20,
			RequestTimeout:  20 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "typeindex",
			User:            "typeindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "typeindex-group",
			Topics: KafkaTopics{
				IndexRequests:   "typeindex.requests",
				IndexResults:    "typeindex.results",
				AnalyticsEvents: "typeindex.analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Indexer: IndexerConfig{
			Glob:      true,
			Workers:   -1,
			ChunkSize: 4096,
			Normalize: "none",
			DataDir:   "./data/segments",
		},
		Vocab: VocabConfig{
			WatchDebounce: 200 * time.Millisecond,
		},
		RPC: RPCConfig{
			Port: 9000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TI_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("TI_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("TI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
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
	if v := os.Getenv("TI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TI_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("TI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TI_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("TI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TI_INDEXER_GLOB"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.Glob = b
		}
	}
	if v := os.Getenv("TI_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("TI_INDEXER_NORMALIZE"); v != "" {
		cfg.Indexer.Normalize = v
	}
	if v := os.Getenv("TI_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("TI_VOCAB_BOLT_PATH"); v != "" {
		cfg.Vocab.BoltPath = v
	}
	if v := os.Getenv("TI_VOCAB_WATCH_DIR"); v != "" {
		cfg.Vocab.WatchDir = v
	}
	if v := os.Getenv("TI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
