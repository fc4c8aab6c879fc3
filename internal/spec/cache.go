package spec

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores parsed contracts between Parse calls.
type Cache interface {
	Get(key string) (*Contract, bool)
	Put(key string, c *Contract, ttl time.Duration)
}

// CacheKey derives the cache key for a document source.
func CacheKey(source string) string {
	return fmt.Sprintf("contract:%016x", xxhash.Sum64String(source))
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(string) (*Contract, bool)         { return nil, false }
func (NoopCache) Put(string, *Contract, time.Duration) {}

type cacheEntry struct {
	contract *Contract
	expires  time.Time
}

// MemoryCache is an in-process LRU with per-entry expiry. It is safe for
// concurrent use.
type MemoryCache struct {
	lru *expirable.LRU[string, cacheEntry]
	now func() time.Time
}

// NewMemoryCache holds at most size contracts, none longer than maxTTL.
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = 64
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, cacheEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (c *MemoryCache) Get(key string) (*Contract, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.contract, true
}

func (c *MemoryCache) Put(key string, contract *Contract, ttl time.Duration) {
	entry := cacheEntry{contract: contract}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int { return c.lru.Len() }
