package domain

import (
	"context"
	"time"
)

// Cache holds asynchronous batch jobs between submission and retrieval.
// Nothing in it is authoritative: a lost entry only means a 404 for a job.
type Cache interface {
	// Get returns nil, nil for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; a non-positive ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// GetBatchJob retrieves a batch job. Returns nil, nil if unknown or expired.
	GetBatchJob(ctx context.Context, jobID string) (*BatchJob, error)

	// SetBatchJob stores a batch job under its ID.
	SetBatchJob(ctx context.Context, job *BatchJob, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `mapstructure:"type"`

	// JobTTL is how long batch jobs stay retrievable.
	JobTTL time.Duration `mapstructure:"jobTtl"`

	// Local LRU bounds. A completed job of a large batch can weigh tens of
	// megabytes, so entries are bounded by count and by total bytes.
	LocalMaxSize  int           `mapstructure:"localMaxSize"`
	LocalMaxBytes int64         `mapstructure:"localMaxBytes"` // 0 = count bound only
	LocalTTL      time.Duration `mapstructure:"localTtl"`

	RedisAddr      string `mapstructure:"redisAddr"`
	RedisPassword  string `mapstructure:"redisPassword"`
	RedisDB        int    `mapstructure:"redisDb"`
	RedisKeyPrefix string `mapstructure:"redisKeyPrefix"`

	// Two-phase settings
	EnableTwoPhase bool `mapstructure:"enableTwoPhase"` // If true, check local first, then Redis

	// Circuit breaker around Redis in two-phase mode
	BreakerMaxFailures uint32        `mapstructure:"breakerMaxFailures"`
	BreakerTimeout     time.Duration `mapstructure:"breakerTimeout"`
}
