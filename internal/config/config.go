package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the DocVault worker.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Queue       QueueConfig
	ObjectStore ObjectStoreConfig
	Processing  ProcessingConfig
	Retention   RetentionConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	URL             string
	Exchange        string
	ProcessingQueue string
	CompletionQueue string
	DeletionQueue   string
	Prefetch        int
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
}

type ProcessingConfig struct {
	DefaultConcurrencyLimit int
	BoundedTimeout          time.Duration
	UnboundedTimeout        time.Duration
	MaxAttempts             int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
}

type RetentionConfig struct {
	DefaultDays   int
	SweepInterval time.Duration
	SweepBatch    int
}

// Load reads configuration from environment variables and returns a
// validated Config. Returns an error with a descriptive message if any
// required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("DOCVAULT_PORT", 8080),
			Env:  envString("DOCVAULT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			URL:             os.Getenv("AMQP_URL"),
			Exchange:        envString("AMQP_EXCHANGE", "docvault"),
			ProcessingQueue: envString("AMQP_PROCESSING_QUEUE", "docvault.processing"),
			CompletionQueue: envString("AMQP_COMPLETION_QUEUE", "docvault.completions"),
			DeletionQueue:   envString("AMQP_DELETION_QUEUE", "docvault.deletions"),
			Prefetch:        envInt("AMQP_PREFETCH", 8),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  os.Getenv("OBJECT_STORE_ENDPOINT"),
			AccessKey: os.Getenv("OBJECT_STORE_ACCESS_KEY"),
			SecretKey: os.Getenv("OBJECT_STORE_SECRET_KEY"),
			Bucket:    envString("OBJECT_STORE_BUCKET", "docvault"),
			UseTLS:    envBool("OBJECT_STORE_TLS", false),
		},
		Processing: ProcessingConfig{
			DefaultConcurrencyLimit: envInt("PROCESSING_CONCURRENCY_LIMIT", 10),
			BoundedTimeout:          envDuration("PROCESSING_BOUNDED_TIMEOUT", 15*time.Minute),
			UnboundedTimeout:        envDuration("PROCESSING_UNBOUNDED_TIMEOUT", 60*time.Minute),
			MaxAttempts:             envInt("PROCESSING_MAX_ATTEMPTS", 5),
			RetryBaseDelay:          envDuration("PROCESSING_RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:           envDuration("PROCESSING_RETRY_MAX_DELAY", 16*time.Second),
		},
		Retention: RetentionConfig{
			DefaultDays:   envInt("RETENTION_DEFAULT_DAYS", 30),
			SweepInterval: envDuration("RETENTION_SWEEP_INTERVAL", 24*time.Hour),
			SweepBatch:    envInt("RETENTION_SWEEP_BATCH", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.URL == "" {
		return fmt.Errorf("AMQP_URL is required")
	}

	if c.ObjectStore.Endpoint == "" {
		return fmt.Errorf("OBJECT_STORE_ENDPOINT is required")
	}
	if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
		return fmt.Errorf("OBJECT_STORE_ACCESS_KEY and OBJECT_STORE_SECRET_KEY are required")
	}

	if c.Processing.DefaultConcurrencyLimit <= 0 {
		return fmt.Errorf("PROCESSING_CONCURRENCY_LIMIT must be positive, got %d", c.Processing.DefaultConcurrencyLimit)
	}
	if c.Processing.MaxAttempts <= 0 {
		return fmt.Errorf("PROCESSING_MAX_ATTEMPTS must be positive, got %d", c.Processing.MaxAttempts)
	}

	if c.Retention.DefaultDays <= 0 {
		return fmt.Errorf("RETENTION_DEFAULT_DAYS must be positive, got %d", c.Retention.DefaultDays)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
