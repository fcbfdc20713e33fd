// Package wiki is a small host platform for the approval engine: pages with
// revision history, users and groups, category and link tables, semantic
// properties, a search index and uploaded files, all in SQLite.
package wiki

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	page_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace  INTEGER NOT NULL,
	title      TEXT NOT NULL,
	latest_rev INTEGER NOT NULL DEFAULT 0,
	UNIQUE (namespace, title)
);
CREATE TABLE IF NOT EXISTS revisions (
	rev_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id   INTEGER NOT NULL,
	author    TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	text      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS revisions_page ON revisions (page_id, timestamp);
CREATE TABLE IF NOT EXISTS users (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS user_groups (
	user_name  TEXT NOT NULL,
	group_name TEXT NOT NULL,
	PRIMARY KEY (user_name, group_name)
);
CREATE TABLE IF NOT EXISTS category_links (
	page_id  INTEGER NOT NULL,
	category TEXT NOT NULL,
	PRIMARY KEY (page_id, category)
);
CREATE TABLE IF NOT EXISTS page_links (
	page_id INTEGER NOT NULL,
	target  TEXT NOT NULL,
	PRIMARY KEY (page_id, target)
);
CREATE TABLE IF NOT EXISTS page_props (
	page_id INTEGER NOT NULL,
	name    TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (page_id, name)
);
CREATE TABLE IF NOT EXISTS semantic_props (
	page_id  INTEGER NOT NULL,
	property TEXT NOT NULL,
	value    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS semantic_props_page ON semantic_props (page_id, property);
CREATE TABLE IF NOT EXISTS search_index (
	page_id INTEGER PRIMARY KEY,
	text    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	name      TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	sha1      TEXT NOT NULL,
	size      INTEGER NOT NULL,
	uploader  TEXT NOT NULL,
	PRIMARY KEY (name, timestamp)
);
`

// TimestampFormat is the layout of revision and upload timestamps.
const TimestampFormat = "20060102150405"

// Wiki is the host catalog.
type Wiki struct {
	db       *sql.DB
	renderer *Renderer
	now      func() time.Time
}

// New creates the host tables on db if needed.
func New(ctx context.Context, db *sql.DB) (*Wiki, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create wiki schema: %w", err)
	}
	return &Wiki{
		db:       db,
		renderer: NewRenderer(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Renderer returns the wikitext renderer.
func (w *Wiki) Renderer() *Renderer { return w.renderer }

func (w *Wiki) timestamp() string {
	return w.now().Format(TimestampFormat)
}

func (w *Wiki) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
