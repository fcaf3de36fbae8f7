package domain

import "time"

// Config holds the complete hazmat configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines which backing services are used
	Tier Tier `mapstructure:"tier"`

	// Lexicon source and reload behaviour
	Lexicon LexiconConfig `mapstructure:"lexicon"`

	// Transport limits
	Limits LimitsConfig `mapstructure:"limits"`

	// Batch runner settings
	Batch BatchConfig `mapstructure:"batch"`

	// Request rate limiting
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventBus"`
	Worker     WorkerConfig     `mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// Lexicon sources.
const (
	LexiconSourceFile       = "file"
	LexiconSourceRepository = "repository"
)

// LexiconConfig selects where the lexicon is loaded from.
type LexiconConfig struct {
	// Source is "file" or "repository"
	Source string `mapstructure:"source"`

	// Path of the lexicon document when Source is "file"
	Path string `mapstructure:"path"`

	// Watch reloads the file on change
	Watch bool `mapstructure:"watch"`

	// LazyRegex defers pattern compilation to first use
	LazyRegex bool `mapstructure:"lazyRegex"`
}

// LimitsConfig bounds inbound batch payloads.
type LimitsConfig struct {
	MaxBatchRecords int   `mapstructure:"maxBatchRecords"`
	MaxBodyBytes    int64 `mapstructure:"maxBodyBytes"`
}

// BatchConfig configures the parallel batch runner.
type BatchConfig struct {
	Workers int           `mapstructure:"workers"`
	Budget  time.Duration `mapstructure:"budget"` // 0 = unbounded
}

// RateLimitConfig configures the request limiter.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

// WorkerConfig configures the asynchronous batch worker.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			ReadTimeout:  60,
			WriteTimeout: 120,
		},
		Tier: TierCommunity,
		Lexicon: LexiconConfig{
			Source: LexiconSourceFile,
			Path:   "./lexicon.json",
		},
		Limits: LimitsConfig{
			MaxBatchRecords: 150_000,
			MaxBodyBytes:    120 << 20,
		},
		Batch: BatchConfig{
			Workers: 8,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			Burst:             100,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./hazmat.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			JobTTL:        time.Hour,
			LocalMaxSize:  1000,
			LocalMaxBytes: 512 << 20,
			LocalTTL:      5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "hazmat",
	}
	cfg.Cache = CacheConfig{
		Type:               "redis",
		JobTTL:             24 * time.Hour,
		RedisAddr:          "localhost:6379",
		RedisKeyPrefix:     "hazmat:",
		EnableTwoPhase:     true,
		LocalMaxSize:       100,
		LocalMaxBytes:      256 << 20,
		LocalTTL:           5 * time.Minute,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "hazmat-workers",
	}
	return cfg
}
