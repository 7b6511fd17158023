package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations in order. Statements are idempotent
// (CREATE TABLE/INDEX IF NOT EXISTS) so re-running on every open is safe.
func Migrate(conn *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := conn.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS installations (
		installation_id       INTEGER PRIMARY KEY,
		owner_handle          TEXT NOT NULL,
		owner_kind            TEXT NOT NULL CHECK(owner_kind IN ('organization','user')),
		plan                  TEXT NOT NULL DEFAULT 'free' CHECK(plan IN ('free','pro')),
		sub_status            TEXT NOT NULL DEFAULT 'active',
		sub_expires_at        TEXT,
		billing_customer_id   TEXT,
		billing_subscription_id TEXT,
		encrypted_oauth_token TEXT,
		settings_json         TEXT NOT NULL DEFAULT '{}',
		created_at            TEXT NOT NULL,
		updated_at            TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS projects (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		installation_id     INTEGER NOT NULL REFERENCES installations(installation_id) ON DELETE CASCADE,
		owner               TEXT NOT NULL,
		project_number      INTEGER NOT NULL,
		external_project_id TEXT NOT NULL DEFAULT '',
		field_start_date       TEXT,
		field_target_date      TEXT,
		field_actual_end       TEXT,
		field_baseline_start   TEXT,
		field_baseline_target  TEXT,
		field_estimate         TEXT,
		field_confidence       TEXT,
		field_percent_complete TEXT,
		field_status           TEXT,
		settings_json       TEXT NOT NULL DEFAULT '{}',
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL,
		UNIQUE(installation_id, owner, project_number)
	)`,

	`CREATE TABLE IF NOT EXISTS holidays (
		installation_id INTEGER NOT NULL REFERENCES installations(installation_id) ON DELETE CASCADE,
		date            TEXT NOT NULL,
		name            TEXT,
		recurring       INTEGER NOT NULL DEFAULT 0,
		UNIQUE(installation_id, date)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		installation_id INTEGER NOT NULL,
		action          TEXT NOT NULL,
		details_json    TEXT NOT NULL DEFAULT '{}',
		ts              TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_installation ON audit_log(installation_id, ts)`,

	`CREATE TABLE IF NOT EXISTS risks (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		installation_id INTEGER NOT NULL,
		project_number  INTEGER NOT NULL,
		title           TEXT NOT NULL,
		description     TEXT,
		severity        TEXT NOT NULL CHECK(severity IN ('critical','high','medium','low')),
		status          TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open','mitigated','closed')),
		owner           TEXT,
		linked_issues_json TEXT NOT NULL DEFAULT '[]',
		mitigation_plan TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risks_project ON risks(installation_id, project_number)`,

	// documents is reserved for future use — not read or written by the
	// core scheduling engine (spec.md §6.1).
	`CREATE TABLE IF NOT EXISTS documents (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		installation_id INTEGER NOT NULL,
		project_number  INTEGER NOT NULL,
		title           TEXT NOT NULL,
		body            TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS field_id_cache (
		project_id  INTEGER PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
		refreshed_at TEXT NOT NULL
	)`,
}
