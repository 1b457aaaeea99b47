// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/mdhender/salesingest/model"
)

// readFunctions maps each format to the DuckDB table function that reads it.
var readFunctions = map[model.Format]string{
	model.FormatCSV:     "read_csv_auto",
	model.FormatJSON:    "read_json_auto",
	model.FormatParquet: "read_parquet",
}

// Load reads the file at path with DuckDB's own readers and converts the
// result into a row-set. DuckDB infers column types; the row-set column
// types are then widened from the values actually returned.
func (s *Store) Load(ctx context.Context, path string, format model.Format) (*model.RowSet, error) {
	fn, ok := readFunctions[format]
	if !ok {
		return nil, &model.UnsupportedFormatError{Tag: format.String()}
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s(%s)", fn, quoteLiteral(path)))
	if err != nil {
		return nil, &model.DecodeError{Path: path, Format: format, Err: err}
	}
	defer rows.Close()

	rs, err := scanRowSet(rows)
	if err != nil {
		return nil, &model.DecodeError{Path: path, Format: format, Err: err}
	}
	return rs, nil
}

func scanRowSet(rows *sql.Rows) (*model.RowSet, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &model.RowSet{Columns: make([]model.Column, len(names))}
	for i, name := range names {
		rs.Columns[i] = model.Column{Name: name}
	}

	dest := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(names))
		for i, v := range dest {
			row[i] = cellValue(v)
		}
		if err := rs.Append(row); err != nil {
			return nil, err
		}
	}
	return rs, rows.Err()
}

// cellValue narrows a driver value to the row-set cell types.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return x
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case duckdb.Decimal:
		return x.Float64()
	case time.Time:
		return x.UTC()
	case []byte:
		return string(x)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}
