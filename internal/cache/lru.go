// Package cache stores asynchronous batch jobs: an in-process LRU, redis,
// or both with redis behind a circuit breaker.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// LRUCache is a mutex guarded LRU bounded by entry count and, optionally,
// by the total size of stored values. Expired entries are dropped lazily
// on read and preferentially on eviction.
type LRUCache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	bytes      int64
	items      map[string]*list.Element
	order      *list.List // front is most recently used
	now        func() time.Time
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewLRUCache bounds the cache by entry count only.
func NewLRUCache(maxEntries int) *LRUCache {
	return NewBoundedLRUCache(maxEntries, 0)
}

// NewBoundedLRUCache bounds the cache by entry count and by maxBytes of
// stored values. maxBytes <= 0 disables the byte bound. The most recent
// write is always kept, even when it alone exceeds maxBytes.
func NewBoundedLRUCache(maxEntries int, maxBytes int64) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &LRUCache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*entry)
	if e.expired(c.now()) {
		c.remove(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return e.value, nil
}

func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		c.bytes += int64(len(value) - len(e.value))
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(elem)
	} else {
		c.items[key] = c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
		c.bytes += int64(len(value))
	}

	c.evict(now)
	return nil
}

// evict runs with mu held. Expired entries go first, then the least
// recently used, until both bounds hold.
func (c *LRUCache) evict(now time.Time) {
	if !c.overLimit() {
		return
	}
	for elem := c.order.Back(); elem != nil && elem != c.order.Front(); {
		prev := elem.Prev()
		if elem.Value.(*entry).expired(now) {
			c.remove(elem)
		}
		elem = prev
	}
	for c.overLimit() && c.order.Len() > 1 {
		c.remove(c.order.Back())
	}
}

func (c *LRUCache) overLimit() bool {
	return c.order.Len() > c.maxEntries || (c.maxBytes > 0 && c.bytes > c.maxBytes)
}

func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

func (c *LRUCache) GetBatchJob(ctx context.Context, jobID string) (*domain.BatchJob, error) {
	return getJob(ctx, c, jobID)
}

func (c *LRUCache) SetBatchJob(ctx context.Context, job *domain.BatchJob, ttl time.Duration) error {
	return setJob(ctx, c, job, ttl)
}

func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	c.order.Init()
	c.bytes = 0
	return nil
}

// Stats returns the entry count and the entry bound.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxEntries
}

// Bytes returns the total size of stored values.
func (c *LRUCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *LRUCache) remove(elem *list.Element) {
	e := c.order.Remove(elem).(*entry)
	delete(c.items, e.key)
	c.bytes -= int64(len(e.value))
}
