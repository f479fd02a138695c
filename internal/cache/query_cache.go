// Package cache provides the bounded in-process query result cache keyed
// by request fingerprints.
package cache

import (
	"sync"
	"time"

	"github.com/DeepFriedCyber/Moov-Sonnet4-sub000/pkg/types"
)

// Config sizes the cache.
type Config struct {
	TTL           time.Duration
	Capacity      int
	SweepInterval time.Duration
}

// DefaultConfig returns the standard sizing.
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		Capacity:      10000,
		SweepInterval: 60 * time.Second,
	}
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type entry struct {
	result     types.SearchResult
	storedAt   time.Time
	ttl        time.Duration
	accessedAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.storedAt.Add(e.ttl))
}

// QueryCache is a TTL map from request fingerprint to a prior search
// result. Expired entries are invisible to readers; a background sweeper
// removes them, and LRU eviction holds the size at capacity. Entries are
// stored fully constructed under the write lock, so readers never observe
// a partial result.
type QueryCache struct {
	mu     sync.RWMutex
	store  map[string]*entry
	cfg    Config
	stats  Stats
	stop   chan struct{}
	closed bool

	now func() time.Time
}

// New creates a cache and starts its sweeper.
func New(cfg Config) *QueryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	c := &QueryCache{
		store: make(map[string]*entry),
		cfg:   cfg,
		stop:  make(chan struct{}),
		now:   time.Now,
	}
	if cfg.SweepInterval > 0 {
		go c.sweeper()
	}
	return c
}

// Get returns the cached result for a fingerprint. Expired entries are
// treated as misses even before the sweeper reaps them.
func (c *QueryCache) Get(fingerprint string) (types.SearchResult, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.store[fingerprint]
	if !ok || e.expired(now) {
		c.mu.RUnlock()
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return types.SearchResult{}, false
	}
	result := e.result
	c.mu.RUnlock()

	c.mu.Lock()
	c.stats.Hits++
	if e, ok := c.store[fingerprint]; ok {
		e.accessedAt = now
	}
	c.mu.Unlock()
	return result, true
}

// Contains reports whether a live entry exists without touching LRU order
// or the hit counters. Used by strategy selection.
func (c *QueryCache) Contains(fingerprint string) bool {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[fingerprint]
	return ok && !e.expired(now)
}

// Put stores a result under the cache's default TTL.
func (c *QueryCache) Put(fingerprint string, result types.SearchResult) {
	c.PutTTL(fingerprint, result, c.cfg.TTL)
}

// PutTTL stores a result with an explicit TTL.
func (c *QueryCache) PutTTL(fingerprint string, result types.SearchResult, ttl time.Duration) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.store[fingerprint] = &entry{
		result:     result,
		storedAt:   now,
		ttl:        ttl,
		accessedAt: now,
	}
	if len(c.store) > c.cfg.Capacity {
		c.evictLRULocked(len(c.store) - c.cfg.Capacity)
	}
}

// Stats returns a copy of the counters.
func (c *QueryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.store)
	return s
}

// Close stops the sweeper and empties the cache.
func (c *QueryCache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.store = make(map[string]*entry)
	c.mu.Unlock()
	close(c.stop)
}

// sweeper reaps expired entries on the configured interval. It holds the
// write lock only for the duration of one pass over the map.
func (c *QueryCache) sweeper() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *QueryCache) sweep() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.store {
		if e.expired(now) {
			delete(c.store, k)
			c.stats.Evictions++
		}
	}
	c.mu.Unlock()
}

// evictLRULocked removes the n least recently accessed entries. Called
// with the write lock held.
func (c *QueryCache) evictLRULocked(n int) {
	for i := 0; i < n; i++ {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.accessedAt.Before(oldest) {
				oldestKey = k
				oldest = e.accessedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.store, oldestKey)
		c.stats.Evictions++
	}
}
