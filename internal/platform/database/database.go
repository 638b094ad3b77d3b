package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the schema. Statements are idempotent so startup can run
// them unconditionally.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		reference_number TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		client_ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL,
		attribute_count INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at
		ON audit_logs (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_entity
		ON audit_logs (entity_type, entity_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log_changes (
		id UUID PRIMARY KEY,
		log_id UUID NOT NULL REFERENCES audit_logs (id),
		position INTEGER NOT NULL,
		attribute_name TEXT NOT NULL,
		module_name TEXT NOT NULL,
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		UNIQUE (log_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_outbox (
		id UUID PRIMARY KEY,
		log_id UUID NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_outbox_unpublished
		ON audit_outbox (created_at) WHERE published_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS controls (
		id UUID PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		framework_id TEXT NOT NULL DEFAULT '',
		review_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}
