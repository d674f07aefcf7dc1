// SPDX-License-Identifier: MIT

// Package store persists dataset and job metadata in SQLite. Geometry
// payloads live in the blob store and are referenced by key.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// ErrNotFound signals a missing row.
var ErrNotFound = errors.New("not found")

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns connection pool settings suited to the daemon's
// read-heavy workload.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// Store wraps the SQLite connection pool.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite pool with mandatory PRAGMAs and runs the
// schema migration. The PRAGMAs ride in the DSN so they apply to every
// pooled connection.
func Open(dbPath string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate failed: %w", err)
	}

	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for readiness probes.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		format TEXT NOT NULL CHECK(format IN ('geojson', 'shapefile')),
		blob_key TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		feature_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_name ON datasets(name);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		state TEXT NOT NULL CHECK(state IN ('queued', 'running', 'succeeded', 'failed')),
		params TEXT NOT NULL DEFAULT '{}',
		dataset_a TEXT NOT NULL,
		dataset_b TEXT,
		result_key TEXT,
		feature_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeFormat is how timestamps are stored, RFC 3339 with sub-second
// precision so lexicographic order matches chronological order.
const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}
