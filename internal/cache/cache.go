// Package cache provides bounded, time-limited key/value caches used for
// role definitions and compiled rule configurations.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTL is a capacity-bounded cache whose entries expire after a fixed
// time-to-live. Expired or evicted entries simply miss; callers refetch.
// Safe for concurrent use.
type TTL[K comparable, V any] struct {
	data *expirable.LRU[K, V]
}

// NewTTL creates a cache holding at most capacity entries, each valid for ttl.
func NewTTL[K comparable, V any](capacity int, ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		data: expirable.NewLRU[K, V](capacity, nil, ttl),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	return c.data.Get(key)
}

// Set stores a value, evicting the oldest entry if capacity is exceeded.
func (c *TTL[K, V]) Set(key K, value V) {
	c.data.Add(key, value)
}

// Remove drops a key from the cache.
func (c *TTL[K, V]) Remove(key K) {
	c.data.Remove(key)
}

// Len returns the number of live entries.
func (c *TTL[K, V]) Len() int {
	return c.data.Len()
}
