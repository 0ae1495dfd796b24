package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the shares table if needed. Having the migration in
// code keeps the service self-contained so docker-compose can bootstrap
// everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS shares (
	id TEXT PRIMARY KEY,
	locator TEXT NOT NULL,
	blob_key TEXT NOT NULL,
	file_name TEXT NOT NULL,
	media_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	ttl_millis BIGINT NOT NULL,
	max_downloads INT,
	remaining_downloads INT,
	password_hash TEXT,
	terminal BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_shares_locator ON shares(locator);
CREATE INDEX IF NOT EXISTS idx_shares_reclaim ON shares(terminal, remaining_downloads);
CREATE INDEX IF NOT EXISTS idx_shares_uploaded_at ON shares(uploaded_at);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
