package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// cacheCapacity bounds the embedding cache; oldest entries fall out first.
const cacheCapacity = 4096

type cacheEntry struct {
	vectors  [][]float32
	storedAt time.Time
}

// embeddingCache keys vectors by a fingerprint of the input texts. A TTL
// keeps a deployment's model switches from serving stale vectors forever.
type embeddingCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

func newEmbeddingCache(ttl time.Duration) *embeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &embeddingCache{
		store: make(map[string]cacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// fingerprint hashes the concatenated inputs.
func fingerprint(texts []string) string {
	h := sha256.Sum256([]byte(strings.Join(texts, "\x00")))
	return hex.EncodeToString(h[:])
}

func (c *embeddingCache) get(key string) ([][]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.vectors, true
}

func (c *embeddingCache) put(key string, vectors [][]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.store) >= cacheCapacity {
		c.evictOldestLocked()
	}
	c.store[key] = cacheEntry{vectors: vectors, storedAt: c.now()}
}

func (c *embeddingCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.store {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey = k
			oldest = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.store, oldestKey)
	}
}
