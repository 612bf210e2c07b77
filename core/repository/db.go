// Package repository provides the Postgres-backed checkpoint store for
// deployments running several orchestrator processes against shared
// state.
package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the database handle.
type DB struct {
	*sql.DB
}

// NewDB connects to Postgres and verifies the connection.
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// EnsureSchema creates the migration tables if they do not exist.
func (db *DB) EnsureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS migration_jobs (
			instance_id   TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL DEFAULT '',
			current_stage TEXT NOT NULL,
			status        TEXT NOT NULL,
			artifacts     JSONB NOT NULL DEFAULT '{}',
			failed_stage  TEXT NOT NULL DEFAULT '',
			error_kind    TEXT NOT NULL DEFAULT '',
			error_detail  TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS migration_events (
			id          BIGSERIAL PRIMARY KEY,
			instance_id TEXT NOT NULL,
			run_id      TEXT NOT NULL,
			stage       TEXT NOT NULL,
			from_status TEXT,
			to_status   TEXT NOT NULL,
			reason      TEXT NOT NULL,
			at          TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS migration_events_instance_idx
			ON migration_events (instance_id, at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
