// Package sqlite implements the bet and audit stores on an embedded SQLite
// database (pure Go driver). It backs local development and the store tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the SQLite handle shared by the stores in this package.
type DB struct {
	path string
	db   *sql.DB
}

// Open creates (if needed) and opens the database at path and applies the
// schema. The pool is limited to one connection, which serializes every
// transaction.
func Open(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: ensure data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ensureWAL(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &DB{path: path, db: db}, nil
}

func ensureWAL(ctx context.Context, db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		_, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(delay)
	}
	return fmt.Errorf("database is locked after retries")
}

// Path returns the path backing the database.
func (d *DB) Path() string {
	return d.path
}

// Ping reports whether the database is usable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bets (
	id                TEXT PRIMARY KEY,
	betting_house     TEXT NOT NULL,
	sport             TEXT NOT NULL DEFAULT '',
	league            TEXT NOT NULL DEFAULT '',
	team_a            TEXT NOT NULL,
	team_b            TEXT NOT NULL,
	bet_type          TEXT NOT NULL,
	selected_side     TEXT NOT NULL CHECK (selected_side IN ('A', 'B')),
	odds              TEXT NOT NULL,
	stake             TEXT NOT NULL,
	payout            TEXT NOT NULL,
	game_date         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending'
	                  CHECK (status IN ('pending', 'won', 'lost', 'returned')),
	is_verified       INTEGER NOT NULL DEFAULT 0,
	pair_id           TEXT,
	bet_position      TEXT CHECK (bet_position IN ('A', 'B')),
	total_pair_stake  TEXT NOT NULL DEFAULT '0',
	profit_percentage TEXT NOT NULL DEFAULT '0',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS bets_pair_position_idx ON bets (pair_id, bet_position);
CREATE INDEX IF NOT EXISTS bets_created_at_idx ON bets (created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event      TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	detail     TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_subject_idx ON audit_log (subject, id);
`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}
