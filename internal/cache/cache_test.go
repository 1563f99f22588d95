package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTL_GetSet(t *testing.T) {
	c := NewTTL[string, int](4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// Overwrite
	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
}

func TestTTL_Expiry(t *testing.T) {
	c := NewTTL[string, string](4, 20*time.Millisecond)

	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after ttl")
}

func TestTTL_CapacityEviction(t *testing.T) {
	c := NewTTL[int, int](2, time.Minute)

	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)

	assert.Equal(t, 2, c.Len())
	// Oldest entry is evicted first
	_, ok := c.Get(1)
	assert.False(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)
}

func TestTTL_Remove(t *testing.T) {
	c := NewTTL[string, int](4, time.Minute)
	c.Set("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}
