// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package store implements the ingestion ledger on SQLite.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so that timestamps stored as text sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStore is a SQLite-backed ingestion ledger.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// StoreConfig holds configuration for creating a SQLiteStore.
type StoreConfig struct {
	// Path is the file path for file-based SQLite.
	// If empty, a private in-memory database is used.
	Path string

	// MustExist refuses to open a database file that does not exist yet.
	// Use InitDatabase to create one.
	MustExist bool
}

// NewSQLiteStore creates a new in-memory SQLite store.
// The schema is created by Initialize.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(StoreConfig{})
}

// NewSQLiteStoreWithConfig creates a SQLite store based on the provided configuration.
func NewSQLiteStoreWithConfig(cfg StoreConfig) (*SQLiteStore, error) {
	var dsn string

	if cfg.Path == "" {
		// every in-memory store gets its own name so that tests do not share a cache
		dsn = fmt.Sprintf("file:ledger-%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", ulid.Make())
	} else {
		if cfg.MustExist {
			if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
				return nil, fmt.Errorf("database file does not exist: %s (run init-db command to create it)", cfg.Path)
			}
		}
		dsn = fileDSN(cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Path == "" {
		// keep one connection open or the shared in-memory database is dropped
		db.SetMaxIdleConns(1)
		db.SetConnMaxIdleTime(0)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// fileDSN applies PRAGMA's per-connection via DSN so the pool always has them.
// modernc.org/sqlite supports repeated _pragma=... parameters.
func fileDSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path,
	)
}

// InitDatabase creates a new SQLite database file and initializes the schema.
// Returns an error if the file already exists.
func InitDatabase(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("database file already exists: %s", path)
	}

	db, err := sql.Open("sqlite", fileDSN(path))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}

	return nil
}

// CompactDatabase compacts a SQLite database file by running VACUUM and checkpointing WAL.
func CompactDatabase(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", path)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint WAL: %w", err)
	}
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}

	return nil
}

// SetClock sets the time source for testing.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	return time.Time{}
}
