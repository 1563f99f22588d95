package boltstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"groupwarden/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConfigStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	cs := store.ConfigStore()
	ctx := context.Background()

	cfg := &policy.GroupConfig{
		GroupID: "grp_1",
		Rules: []policy.Rule{{
			ID:      "rule_1",
			Name:    "No spam",
			Type:    policy.RuleKeywordBlock,
			Enabled: true,
			Action:  policy.ActionReject,
			Config:  json.RawMessage(`{"keywords":["spam"],"matchMode":"PARTIAL"}`),
		}},
	}

	require.NoError(t, cs.SaveGroupConfig(ctx, cfg))

	got, err := cs.GetGroupConfig(ctx, "grp_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "grp_1", got.GroupID)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "rule_1", got.Rules[0].ID)
	assert.Equal(t, policy.RuleKeywordBlock, got.Rules[0].Type)
}

func TestConfigStore_MissingGroup(t *testing.T) {
	store := openTestStore(t)

	got, err := store.ConfigStore().GetGroupConfig(context.Background(), "grp_unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConfigStore_OverwritePreservesLatest(t *testing.T) {
	store := openTestStore(t)
	cs := store.ConfigStore()
	ctx := context.Background()

	require.NoError(t, cs.SaveGroupConfig(ctx, &policy.GroupConfig{GroupID: "grp_1"}))
	require.NoError(t, cs.SaveGroupConfig(ctx, &policy.GroupConfig{
		GroupID: "grp_1",
		Rules:   []policy.Rule{{ID: "rule_new"}},
	}))

	got, err := cs.GetGroupConfig(ctx, "grp_1")
	require.NoError(t, err)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "rule_new", got.Rules[0].ID)
}

func TestConfigStore_ListGroupIDs(t *testing.T) {
	store := openTestStore(t)
	cs := store.ConfigStore()
	ctx := context.Background()

	require.NoError(t, cs.SaveGroupConfig(ctx, &policy.GroupConfig{GroupID: "grp_a"}))
	require.NoError(t, cs.SaveGroupConfig(ctx, &policy.GroupConfig{GroupID: "grp_b"}))

	ids, err := cs.ListGroupIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"grp_a", "grp_b"}, ids)
}
