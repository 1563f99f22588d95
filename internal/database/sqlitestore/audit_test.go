package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"groupwarden/internal/guard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestAuditStore(t *testing.T) *AuditStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuditStore(db)
}

func testRecord(id, groupID string, ts time.Time) guard.ActionRecord {
	return guard.ActionRecord{
		ID:               id,
		Timestamp:        ts,
		ActorID:          "usr_1",
		ActorDisplayName: "EvilUser",
		GroupID:          groupID,
		Action:           guard.ActionInstanceClosed,
		Reason:           "Not a member of the group",
		Module:           guard.ModuleInstanceGuard,
		Details:          map[string]string{"world_id": "wrld_x", "instance_id": "inst1"},
	}
}

func TestAuditStore_CreateAndListRecent(t *testing.T) {
	store := openTestAuditStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_1", "grp_1", base)))
	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_2", "grp_1", base.Add(time.Minute))))
	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_3", "grp_2", base.Add(2*time.Minute))))

	records, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec_3", records[0].ID)
	assert.Equal(t, "rec_2", records[1].ID)
	assert.Equal(t, "wrld_x", records[0].Details["world_id"])
	assert.True(t, records[0].Timestamp.Equal(base.Add(2*time.Minute)))
}

func TestAuditStore_ListByGroup(t *testing.T) {
	store := openTestAuditStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_1", "grp_1", base)))
	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_2", "grp_2", base.Add(time.Minute))))

	records, err := store.ListByGroup(ctx, "grp_2", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec_2", records[0].ID)
}

func TestAuditStore_ListAllOldestFirst(t *testing.T) {
	store := openTestAuditStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_2", "grp_1", base.Add(time.Minute))))
	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_1", "grp_1", base)))

	records, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec_1", records[0].ID)
	assert.Equal(t, "rec_2", records[1].ID)
}

func TestAuditStore_Count(t *testing.T) {
	store := openTestAuditStore(t)
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_1", "grp_1", time.Now())))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScanRecords_RowErrorSurfaces(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// NULL cannot scan into a plain string, so a malformed row must fail
	// the whole read rather than be silently dropped.
	rows, err := db.Query(`SELECT NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL`)
	require.NoError(t, err)
	defer rows.Close()

	records, err := scanRecords(rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan audit record")
	assert.Nil(t, records)
}

func TestAuditStore_DuplicateIDRejected(t *testing.T) {
	store := openTestAuditStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAuditRecord(ctx, testRecord("rec_1", "grp_1", time.Now())))
	assert.Error(t, store.CreateAuditRecord(ctx, testRecord("rec_1", "grp_1", time.Now())))
}
