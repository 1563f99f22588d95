package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"groupwarden/internal/policy"

	bolt "go.etcd.io/bbolt"
)

// ConfigStore provides persistent storage for per-group rule configuration.
type ConfigStore struct {
	db *bolt.DB
}

// Ensure ConfigStore implements the engine's interface at compile time.
var _ policy.ConfigStore = (*ConfigStore)(nil)

// GetGroupConfig retrieves a group's rule configuration. Returns nil when
// the group has no stored configuration.
func (s *ConfigStore) GetGroupConfig(ctx context.Context, groupID string) (*policy.GroupConfig, error) {
	var cfg *policy.GroupConfig

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketGroupConfigs)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(groupID))
		if data == nil {
			return nil
		}

		cfg = &policy.GroupConfig{}
		return json.Unmarshal(data, cfg)
	})

	return cfg, err
}

// SaveGroupConfig stores a group's rule configuration.
func (s *ConfigStore) SaveGroupConfig(ctx context.Context, cfg *policy.GroupConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketGroupConfigs)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketGroupConfigs)
		}

		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal group config: %w", err)
		}

		return bucket.Put([]byte(cfg.GroupID), data)
	})
}

// ListGroupIDs returns the ids of all groups with stored configuration.
func (s *ConfigStore) ListGroupIDs(ctx context.Context) ([]string, error) {
	var ids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketGroupConfigs)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})

	return ids, err
}
