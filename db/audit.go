package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrelsched/engine/model"
)

// InsertAuditEntry appends one durable audit record. Called by the audit
// pipeline's sink, never directly by request handlers (spec.md §10.14).
func InsertAuditEntry(ctx context.Context, conn *sql.DB, e *model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	res, err := conn.ExecContext(ctx, `INSERT INTO audit_log (installation_id, action, details_json, ts)
		VALUES (?, ?, ?, ?)`, e.InstallationID, e.Action, e.DetailsJSON, e.Timestamp.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		e.ID = id
	}
	return nil
}

// ListAuditEntries returns the most recent audit entries for an
// installation, newest first, bounded by limit.
func ListAuditEntries(ctx context.Context, conn *sql.DB, installationID int64, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := conn.QueryContext(ctx, `SELECT id, installation_id, action, details_json, ts
		FROM audit_log WHERE installation_id = ? ORDER BY ts DESC LIMIT ?`, installationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.InstallationID, &e.Action, &e.DetailsJSON, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing audit entry timestamp: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
