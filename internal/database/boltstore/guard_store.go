package boltstore

import (
	"encoding/json"
	"fmt"
	"time"

	"groupwarden/internal/dedup"

	bolt "go.etcd.io/bbolt"
)

// GuardStore persists the enforcement loop's durable state: the dedup
// registry snapshot and the set of already-closed instances.
type GuardStore struct {
	db *bolt.DB
}

// Ensure GuardStore implements the registry's store interface at compile time.
var _ dedup.Store = (*GuardStore)(nil)

// processedEventsKey holds the single JSON snapshot inside the bucket,
// preserving the registry's insertion order.
var processedEventsKey = []byte("snapshot")

// LoadProcessedEvents returns the persisted dedup keys, oldest first.
func (s *GuardStore) LoadProcessedEvents() ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketProcessedEvents)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(processedEventsKey)
		if data == nil {
			return nil
		}

		return json.Unmarshal(data, &keys)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load processed events: %w", err)
	}

	return keys, nil
}

// SaveProcessedEvents replaces the persisted snapshot.
func (s *GuardStore) SaveProcessedEvents(keys []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketProcessedEvents)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketProcessedEvents)
		}

		data, err := json.Marshal(keys)
		if err != nil {
			return fmt.Errorf("failed to marshal processed events: %w", err)
		}

		return bucket.Put(processedEventsKey, data)
	})
}

// IsClosed checks whether an instance was already closed by the guard.
func (s *GuardStore) IsClosed(instanceKey string) bool {
	var closed bool

	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketClosedInstances)
		if bucket == nil {
			return nil
		}

		closed = bucket.Get([]byte(instanceKey)) != nil
		return nil
	})

	return closed
}

// MarkClosed records an instance as closed.
func (s *GuardStore) MarkClosed(instanceKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketClosedInstances)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketClosedInstances)
		}

		ts := time.Now().UTC().Format(time.RFC3339)
		return bucket.Put([]byte(instanceKey), []byte(ts))
	})
}

// ClosedInstanceCount returns the number of instances marked closed.
func (s *GuardStore) ClosedInstanceCount() int {
	var count int

	s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketClosedInstances)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})

	return count
}
