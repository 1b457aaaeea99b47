// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package duckdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/mdhender/salesingest/model"
)

// columnTypes maps row-set column types to DuckDB column types.
var columnTypes = map[model.ColumnType]string{
	model.TypeNull:   "VARCHAR",
	model.TypeBool:   "BOOLEAN",
	model.TypeInt:    "BIGINT",
	model.TypeFloat:  "DOUBLE",
	model.TypeTime:   "TIMESTAMP",
	model.TypeString: "VARCHAR",
}

// createTableSQL returns the DDL that creates table for rs when it is missing.
func createTableSQL(rs *model.RowSet, table string) string {
	cols := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		cols[i] = quoteIdent(c.Name) + " " + columnTypes[c.Type]
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
}

// insertSQL returns the parameterized INSERT for rs.
func insertSQL(rs *model.RowSet, table string) string {
	cols := make([]string, len(rs.Columns))
	marks := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		cols[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// Append creates table if needed and inserts every row of rs in one
// transaction, so a failed append leaves no partial batch behind.
func (s *Store) Append(ctx context.Context, rs *model.RowSet, table string) error {
	if err := s.appendTx(ctx, rs, table); err != nil {
		return &model.SinkWriteError{Table: table, Err: err}
	}
	return nil
}

func (s *Store) appendTx(ctx context.Context, rs *model.RowSet, table string) error {
	if len(rs.Columns) == 0 {
		return fmt.Errorf("row-set has no columns")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableSQL(rs, table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(rs, table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rs.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	return n, err
}
