// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package duckdb implements the ledger, a loader engine and a sink on a
// single DuckDB database.
//
// A DuckDB file may be opened by only one process, so the CLI opens a
// Store once per path and hands the same value to every component that
// is configured for it.
package duckdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

//go:embed schema.sql
var schemaSQL string

// Store is a DuckDB database used as ledger, loader and sink.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the DuckDB database at path, creating it if needed.
// An empty path opens a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// SetClock sets the time source for testing.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a SQL string literal.
// Table functions such as read_csv_auto do not accept bound parameters for the path.
func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
