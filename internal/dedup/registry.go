// Package dedup tracks which audit events have already been handled so that
// enforcement is attempted at most once per event, across restarts.
package dedup

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store persists the registry contents between runs.
type Store interface {
	LoadProcessedEvents() ([]string, error)
	SaveProcessedEvents(keys []string) error
}

// Registry is a bounded, insertion-ordered set of processed audit event
// keys. When the capacity is exceeded the oldest entries are dropped.
// Eviction is strictly oldest-first; the upstream delivers recent events,
// so dropped keys are long past the audit log's retention window.
//
// A Registry is safe for concurrent reads, but only one enforcement pass
// may mutate it at a time.
type Registry struct {
	mu       sync.RWMutex
	keys     map[string]struct{}
	order    []string
	capacity int
	store    Store
	loaded   bool
}

// Key builds the dedup key for an audit event within a group.
func Key(groupID, eventID string) string {
	return groupID + ":" + eventID
}

// NewRegistry creates a registry bounded to capacity entries, backed by the
// given store. A nil store keeps the registry purely in memory.
func NewRegistry(store Store, capacity int) *Registry {
	return &Registry{
		keys:     make(map[string]struct{}),
		capacity: capacity,
		store:    store,
	}
}

// Load hydrates the registry from the store. It is idempotent; only the
// first call reads from storage.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded || r.store == nil {
		r.loaded = true
		return nil
	}

	keys, err := r.store.LoadProcessedEvents()
	if err != nil {
		return fmt.Errorf("failed to load processed events: %w", err)
	}

	for _, k := range keys {
		if _, ok := r.keys[k]; ok {
			continue
		}
		r.keys[k] = struct{}{}
		r.order = append(r.order, k)
	}
	r.pruneLocked()
	r.loaded = true

	log.Info().Int("entries", len(r.order)).Msg("dedup: registry loaded")
	return nil
}

// Contains reports whether key has already been processed.
func (r *Registry) Contains(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[key]
	return ok
}

// Add marks key as processed. Adding an existing key is a no-op.
func (r *Registry) Add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; ok {
		return
	}
	r.keys[key] = struct{}{}
	r.order = append(r.order, key)
	r.pruneLocked()
}

// Len returns the number of tracked keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Persist flushes the current contents to the store, oldest first.
func (r *Registry) Persist() error {
	if r.store == nil {
		return nil
	}

	r.mu.RLock()
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	r.mu.RUnlock()

	if err := r.store.SaveProcessedEvents(keys); err != nil {
		return fmt.Errorf("failed to persist processed events: %w", err)
	}
	return nil
}

// pruneLocked drops the oldest entries once capacity is exceeded.
// Caller must hold the write lock.
func (r *Registry) pruneLocked() {
	if r.capacity <= 0 || len(r.order) <= r.capacity {
		return
	}

	drop := len(r.order) - r.capacity
	for _, k := range r.order[:drop] {
		delete(r.keys, k)
	}
	r.order = append(r.order[:0], r.order[drop:]...)
}
