package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// ErrRemoteUnavailable is returned while the breaker around L2 is open.
var ErrRemoteUnavailable = errors.New("remote cache unavailable")

// New creates a new cache based on configuration.
// "memory" is a bounded LRU; "redis" is redis alone, or redis behind a
// local LRU when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewBoundedLRUCache(cfg.LocalMaxSize, cfg.LocalMaxBytes), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

type remote interface {
	kv
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for sharing jobs across instances, behind a circuit breaker
//
// While the breaker is open, reads are served from L1 only and writes land
// in L1 and report ErrRemoteUnavailable.
type TwoPhaseCache struct {
	local   *LRUCache
	remote  remote
	breaker *gobreaker.CircuitBreaker
	l1TTL   time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	r, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	return newTwoPhase(NewBoundedLRUCache(cfg.LocalMaxSize, cfg.LocalMaxBytes), r, cfg), nil
}

func newTwoPhase(local *LRUCache, r remote, cfg domain.CacheConfig) *TwoPhaseCache {
	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("cache breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &TwoPhaseCache{
		local:   local,
		remote:  r,
		breaker: breaker,
		l1TTL:   l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.remote.Get(ctx, key)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	val, _ = out.([]byte)
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.remote.Set(ctx, key, value, ttl)
	})
	return c.remoteErr(err)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.remote.Delete(ctx, key)
	})
	return c.remoteErr(err)
}

// GetBatchJob retrieves a batch job from L2 first, since a worker on
// another instance moves the job out of pending there. L1 answers only
// while L2 is unreachable or no longer holds the job.
func (c *TwoPhaseCache) GetBatchJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	return getJob(ctx, remoteFirst{c}, jobID)
}

// remoteFirst reads through L2 before L1 for records that change after
// they are written.
type remoteFirst struct {
	*TwoPhaseCache
}

func (c remoteFirst) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.remote.Get(ctx, key)
	})
	if err != nil {
		slog.Debug("remote job read failed, using L1", "key", key, "error", err)
		return c.local.Get(ctx, key)
	}
	val, _ := out.([]byte)
	if val == nil {
		return c.local.Get(ctx, key)
	}
	_ = c.local.Set(ctx, key, val, c.l1TTL)
	return val, nil
}

// SetBatchJob stores a batch job in both tiers.
func (c *TwoPhaseCache) SetBatchJob(ctx context.Context, job *domain.BatchJob, ttl time.Duration) error {
	return setJob(ctx, c, job, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

// BreakerState reports the L2 breaker state: closed, open or half-open.
func (c *TwoPhaseCache) BreakerState() string {
	return c.breaker.State().String()
}

func (c *TwoPhaseCache) remoteErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrRemoteUnavailable
	}
	return err
}
