// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mdhender/salesingest/model"
)

// columnTypes maps row-set column types to Postgres column types.
var columnTypes = map[model.ColumnType]string{
	model.TypeNull:   "TEXT",
	model.TypeBool:   "BOOLEAN",
	model.TypeInt:    "BIGINT",
	model.TypeFloat:  "DOUBLE PRECISION",
	model.TypeTime:   "TIMESTAMPTZ",
	model.TypeString: "TEXT",
}

// tableIdent splits an optionally schema-qualified table name.
func tableIdent(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// createTableSQL returns the DDL that creates table for rs when it is missing.
// An existing table is appended to as-is.
func createTableSQL(rs *model.RowSet, table string) string {
	cols := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize() + " " + columnTypes[c.Type]
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableIdent(table).Sanitize(), strings.Join(cols, ", "))
}

// Append creates table if needed and copies every row of rs into it in one
// transaction.
func (s *Store) Append(ctx context.Context, rs *model.RowSet, table string) error {
	if len(rs.Columns) == 0 {
		return &model.SinkWriteError{Table: table, Err: fmt.Errorf("row-set has no columns")}
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createTableSQL(rs, table)); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		n, err := tx.CopyFrom(ctx, tableIdent(table), rs.Names(), pgx.CopyFromRows(rs.Rows))
		if err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
		if n != int64(rs.Len()) {
			return fmt.Errorf("copied %d of %d rows", n, rs.Len())
		}
		return nil
	})
	if err != nil {
		return &model.SinkWriteError{Table: table, Err: err}
	}
	return nil
}
