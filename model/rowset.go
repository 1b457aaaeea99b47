// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package model

import (
	"fmt"
	"time"
)

// ColumnType is the scalar type of a RowSet column.
// Types are ordered so that Widen can promote a column as values are observed.
type ColumnType int

const (
	TypeNull ColumnType = iota // no non-null value seen yet
	TypeBool
	TypeInt
	TypeFloat
	TypeTime
	TypeString
)

// String implements the Stringer interface.
func (t ColumnType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeTime:
		return "time"
	case TypeString:
		return "string"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Widen returns the narrowest type that can hold values of both a and b.
// Int and float widen to float; any other mix widens to string.
func Widen(a, b ColumnType) ColumnType {
	switch {
	case a == b:
		return a
	case a == TypeNull:
		return b
	case b == TypeNull:
		return a
	case (a == TypeInt && b == TypeFloat) || (a == TypeFloat && b == TypeInt):
		return TypeFloat
	}
	return TypeString
}

// TypeOf returns the column type of a cell value.
// Values outside the RowSet value domain report TypeString.
func TypeOf(v any) ColumnType {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case time.Time:
		return TypeTime
	}
	return TypeString
}

// Column is one named, typed column of a RowSet.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// RowSet is the uniform in-memory table produced by a loader.
//
// Cells are one of nil, bool, int64, float64, string or time.Time.
// Every row has exactly len(Columns) cells, in column order.
type RowSet struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Index returns the position of the named column, or -1 if it is absent.
func (rs *RowSet) Index(name string) int {
	for i, col := range rs.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in order.
func (rs *RowSet) Names() []string {
	names := make([]string, len(rs.Columns))
	for i, col := range rs.Columns {
		names[i] = col.Name
	}
	return names
}

// Row returns row i as a map from column name to value.
func (rs *RowSet) Row(i int) map[string]any {
	row := make(map[string]any, len(rs.Columns))
	for j, col := range rs.Columns {
		row[col.Name] = rs.Rows[i][j]
	}
	return row
}

// Append adds a row, widening column types to fit the new values.
// It returns an error if the row has the wrong number of cells.
func (rs *RowSet) Append(row []any) error {
	if len(row) != len(rs.Columns) {
		return fmt.Errorf("row has %d cells, want %d", len(row), len(rs.Columns))
	}
	for j, v := range row {
		rs.Columns[j].Type = Widen(rs.Columns[j].Type, TypeOf(v))
	}
	rs.Rows = append(rs.Rows, row)
	return nil
}

// Numeric converts a numeric cell to float64.
// The second result is false for nil and for non-numeric values.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
