// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// loggableDSN returns a form of dsn that is safe to log.
// Postgres connection strings lose their password; file paths are returned as-is.
func loggableDSN(kind, dsn string) string {
	if kind != "postgres" {
		return dsn
	}
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "postgres://(invalid)"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}
