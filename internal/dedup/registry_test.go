package dedup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	keys    []string
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) LoadProcessedEvents() ([]string, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]string(nil), s.keys...), nil
}

func (s *memStore) SaveProcessedEvents(keys []string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.keys = append([]string(nil), keys...)
	s.saves++
	return nil
}

func TestRegistry_AddContains(t *testing.T) {
	r := NewRegistry(nil, 100)

	assert.False(t, r.Contains("grp_1:evt_1"))
	r.Add("grp_1:evt_1")
	assert.True(t, r.Contains("grp_1:evt_1"))
	assert.Equal(t, 1, r.Len())

	// Duplicate adds are no-ops
	r.Add("grp_1:evt_1")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Key(t *testing.T) {
	assert.Equal(t, "grp_1:evt_1", Key("grp_1", "evt_1"))
}

func TestRegistry_PruneDropsOldest(t *testing.T) {
	r := NewRegistry(nil, 3)

	for i := range 5 {
		r.Add(fmt.Sprintf("grp_1:evt_%d", i))
	}

	assert.Equal(t, 3, r.Len())
	assert.False(t, r.Contains("grp_1:evt_0"))
	assert.False(t, r.Contains("grp_1:evt_1"))
	assert.True(t, r.Contains("grp_1:evt_2"))
	assert.True(t, r.Contains("grp_1:evt_4"))
}

func TestRegistry_PersistAndReload(t *testing.T) {
	store := &memStore{}

	r := NewRegistry(store, 100)
	require.NoError(t, r.Load())
	r.Add("grp_1:evt_1")
	r.Add("grp_1:evt_2")
	require.NoError(t, r.Persist())

	// Simulate a process restart with a fresh registry on the same store
	r2 := NewRegistry(store, 100)
	require.NoError(t, r2.Load())
	assert.True(t, r2.Contains("grp_1:evt_1"))
	assert.True(t, r2.Contains("grp_1:evt_2"))
	assert.Equal(t, 2, r2.Len())
}

func TestRegistry_LoadIdempotent(t *testing.T) {
	store := &memStore{keys: []string{"grp_1:evt_1"}}

	r := NewRegistry(store, 100)
	require.NoError(t, r.Load())
	require.NoError(t, r.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_LoadError(t *testing.T) {
	store := &memStore{loadErr: errors.New("disk gone")}

	r := NewRegistry(store, 100)
	err := r.Load()
	assert.Error(t, err)
}

func TestRegistry_PersistBounded(t *testing.T) {
	store := &memStore{}
	r := NewRegistry(store, 2)
	require.NoError(t, r.Load())

	r.Add("grp_1:evt_1")
	r.Add("grp_1:evt_2")
	r.Add("grp_1:evt_3")
	require.NoError(t, r.Persist())

	assert.Equal(t, []string{"grp_1:evt_2", "grp_1:evt_3"}, store.keys)
}
