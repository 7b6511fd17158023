// Package db opens the engine's SQLite-backed persistent store (spec.md
// §6.1: installations, projects, holidays, auditLog, risks, documents) with
// write-ahead logging enabled, and runs schema migrations on open.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (and creates, if needed) a SQLite database at path. ":memory:"
// opens an in-memory database, used by tests. WAL mode and foreign-key
// enforcement are enabled on every open, per spec.md §6.1/§5.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
	}

	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if dsn == ":memory:" {
		// A single shared connection is required for :memory: databases —
		// otherwise each pooled connection sees its own empty database.
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return conn, nil
}
