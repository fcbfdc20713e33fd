// Package store persists approval records in SQLite.
//
// Two independent tables hold the state: approval_records points a page at
// its approved revision, file_approval_records points a file at its approved
// upload. Each table has at most one row per item; every write is a single
// upsert or delete statement, so concurrent approvals of the same item never
// produce duplicate rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS approval_records (
	item_id INTEGER PRIMARY KEY,
	rev_id  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS file_approval_records (
	file_key           TEXT PRIMARY KEY,
	approved_timestamp TEXT NOT NULL,
	approved_sha1      TEXT NOT NULL
);
`

// DB is an open SQLite database.
type DB struct {
	db *sql.DB
}

// DefaultPath returns ~/.approvedrevs/approvedrevs.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "approvedrevs.db")
	}
	return filepath.Join(home, ".approvedrevs", "approvedrevs.db")
}

// Open opens (creating if needed) the database at path and ensures the
// approval schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps upserts serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create approval schema: %w", err)
	}
	return &DB{db: db}, nil
}

// SQL returns the underlying handle so host tables can share the file.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }
