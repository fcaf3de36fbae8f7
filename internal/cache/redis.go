package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// DefaultKeyPrefix namespaces every key so deployments can share a redis.
const DefaultKeyPrefix = "hazmat:"

// RedisCache keeps jobs in redis so any API instance can answer
// GET /batches/{id} for a job a worker on another host finished.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects with the redis settings of cfg and pings once.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		// Completed jobs are written in one SET; give large ones room.
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisCacheFromClient(client, cfg.RedisKeyPrefix), nil
}

// NewRedisCacheFromClient wraps client without pinging it. An empty prefix
// selects DefaultKeyPrefix.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, max(ttl, 0)).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

func (c *RedisCache) GetBatchJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	return getJob(ctx, c, jobID)
}

func (c *RedisCache) SetBatchJob(ctx context.Context, job *domain.BatchJob, ttl time.Duration) error {
	return setJob(ctx, c, job, ttl)
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
