// Package sqlitestore provides SQLite-backed store implementations.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"groupwarden/internal/guard"

	_ "modernc.org/sqlite"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS guard_audit_log (
	id                 TEXT PRIMARY KEY,
	timestamp          TEXT NOT NULL,
	actor_id           TEXT NOT NULL,
	actor_display_name TEXT NOT NULL,
	group_id           TEXT NOT NULL,
	action             TEXT NOT NULL,
	reason             TEXT NOT NULL,
	module             TEXT NOT NULL,
	details            TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_guard_audit_log_timestamp ON guard_audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_guard_audit_log_group ON guard_audit_log(group_id);
`

// Open opens (creating if necessary) the SQLite database at path and
// applies the audit schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}

	return db, nil
}

// AuditStore implements guard.AuditTrail using SQLite.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an AuditStore backed by the given database.
// The database must already have the audit schema applied.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Ensure AuditStore implements the interface at compile time.
var _ guard.AuditTrail = (*AuditStore)(nil)

// CreateAuditRecord appends one enforcement action to the trail.
func (s *AuditStore) CreateAuditRecord(ctx context.Context, rec guard.ActionRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		details = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO guard_audit_log
			(id, timestamp, actor_id, actor_display_name, group_id, action, reason, module, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.Format(time.RFC3339Nano), rec.ActorID, rec.ActorDisplayName,
		rec.GroupID, rec.Action, rec.Reason, rec.Module, string(details))
	if err != nil {
		return fmt.Errorf("create audit record: %w", err)
	}
	return nil
}

// ListRecent returns the newest records first, up to limit.
func (s *AuditStore) ListRecent(ctx context.Context, limit int) ([]guard.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, actor_id, actor_display_name, group_id, action, reason, module, details
		FROM guard_audit_log ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByGroup returns the newest records for one group, up to limit.
func (s *AuditStore) ListByGroup(ctx context.Context, groupID string, limit int) ([]guard.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, actor_id, actor_display_name, group_id, action, reason, module, details
		FROM guard_audit_log WHERE group_id = ? ORDER BY timestamp DESC LIMIT ?
	`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListAll streams every record oldest first. Used by the export endpoint.
func (s *AuditStore) ListAll(ctx context.Context) ([]guard.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, actor_id, actor_display_name, group_id, action, reason, module, details
		FROM guard_audit_log ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the total number of audit records.
func (s *AuditStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guard_audit_log`).Scan(&count)
	return count, err
}

func scanRecords(rows *sql.Rows) ([]guard.ActionRecord, error) {
	var records []guard.ActionRecord
	for rows.Next() {
		var r guard.ActionRecord
		var timestampStr, detailsStr string
		if err := rows.Scan(&r.ID, &timestampStr, &r.ActorID, &r.ActorDisplayName,
			&r.GroupID, &r.Action, &r.Reason, &r.Module, &detailsStr); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, timestampStr)
		_ = json.Unmarshal([]byte(detailsStr), &r.Details)
		records = append(records, r)
	}
	return records, rows.Err()
}
