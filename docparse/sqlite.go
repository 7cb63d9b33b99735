// ABOUTME: SQLite-backed parse cache so repeated runs over the same data room skip re-parsing.
// ABOUTME: Single table keyed by content hash; WAL mode for concurrent pool workers.
package docparse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteCache is a durable Cache backed by a local SQLite database.
type SqliteCache struct {
	db *sql.DB
}

// OpenSqlite opens or creates the parse cache database at the given path.
func OpenSqlite(path string) (*SqliteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS parsed_docs (
			hash TEXT PRIMARY KEY,
			doc TEXT NOT NULL,
			cached_at TEXT NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SqliteCache{db: db}, nil
}

// Close closes the underlying database.
func (c *SqliteCache) Close() error {
	return c.db.Close()
}

func (c *SqliteCache) Get(ctx context.Context, hash string) (*Entry, bool, error) {
	var docJSON, cachedAt string
	err := c.db.QueryRowContext(ctx,
		"SELECT doc, cached_at FROM parsed_docs WHERE hash = ?", hash,
	).Scan(&docJSON, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query parsed doc: %w", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, false, fmt.Errorf("decode cached doc: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, cachedAt)
	if err != nil {
		return nil, false, fmt.Errorf("parse cached_at: %w", err)
	}

	return &Entry{Hash: hash, Doc: &doc, CachedAt: ts}, true, nil
}

func (c *SqliteCache) Put(ctx context.Context, entry *Entry) error {
	docJSON, err := json.Marshal(entry.Doc)
	if err != nil {
		return fmt.Errorf("encode doc: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO parsed_docs (hash, doc, cached_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			doc = excluded.doc,
			cached_at = excluded.cached_at`,
		entry.Hash, string(docJSON), entry.CachedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert parsed doc: %w", err)
	}
	return nil
}

func (c *SqliteCache) Delete(ctx context.Context, hash string) error {
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM parsed_docs WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("delete parsed doc: %w", err)
	}
	return nil
}
