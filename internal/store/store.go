// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store persists the four collections the enforcement engine
// works over: the append-only traffic audit log, the violation ledger,
// connection sessions, and firewall rule records. All keys are the
// normalized device MAC. The store is deliberately dumb: window
// arithmetic, caps, and state transitions live in the engine packages.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the gateway's SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open security db: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn and keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traffic_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mac TEXT NOT NULL,
		ttl INTEGER NOT NULL,
		classification TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		observed_at INTEGER NOT NULL -- Unix timestamp
	);
	CREATE INDEX IF NOT EXISTS idx_traffic_log_mac ON traffic_log(mac);
	CREATE INDEX IF NOT EXISTS idx_traffic_log_time ON traffic_log(observed_at);

	CREATE TABLE IF NOT EXISTS violation_ledger (
		mac TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS connection_sessions (
		id TEXT PRIMARY KEY,
		mac TEXT NOT NULL,
		source_addr TEXT NOT NULL,
		classification TEXT NOT NULL,
		opened_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_mac ON connection_sessions(mac, active);
	CREATE INDEX IF NOT EXISTS idx_sessions_seen ON connection_sessions(last_seen_at);

	CREATE TABLE IF NOT EXISTS firewall_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mac TEXT NOT NULL,
		ttl_value INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		violation_count INTEGER NOT NULL DEFAULT 0,
		descriptor TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_rules_mac ON firewall_rules(mac, status);
	CREATE INDEX IF NOT EXISTS idx_rules_expiry ON firewall_rules(status, expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}
