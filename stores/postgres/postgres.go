// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package postgres implements the ledger and the sink on Postgres.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS processed_files (
    file_name    TEXT PRIMARY KEY,
    processed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS file_claims (
    file_name  TEXT PRIMARY KEY,
    claimed_by TEXT NOT NULL,
    claimed_at TIMESTAMPTZ NOT NULL
);
`

// Store is a Postgres-backed ledger and sink.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a new Postgres Store and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// SetClock sets the time source for testing.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
