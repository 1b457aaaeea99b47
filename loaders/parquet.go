// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package loaders

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
)

// parquetChunkRows is the number of rows converted per Arrow record batch.
const parquetChunkRows = 64 * 1024

// LoadParquet decodes a Parquet file through Arrow.
// Integer columns become int64, floating and decimal columns float64, and
// temporal columns time.Time; anything else is kept as its string form.
func LoadParquet(ctx context.Context, fs afero.Fs, path string) (*model.RowSet, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, decodeError(path, model.FormatParquet, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, decodeError(path, model.FormatParquet, err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: parquetChunkRows}, memory.DefaultAllocator)
	if err != nil {
		return nil, decodeError(path, model.FormatParquet, err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, decodeError(path, model.FormatParquet, err)
	}
	defer tbl.Release()

	rs, err := tableToRowSet(tbl)
	if err != nil {
		return nil, decodeError(path, model.FormatParquet, err)
	}
	return rs, nil
}

func tableToRowSet(tbl arrow.Table) (*model.RowSet, error) {
	schema := tbl.Schema()
	names := make([]string, schema.NumFields())
	rs := &model.RowSet{
		Columns: make([]model.Column, schema.NumFields()),
		Rows:    make([][]any, 0, tbl.NumRows()),
	}
	for j, field := range schema.Fields() {
		names[j] = field.Name
		rs.Columns[j] = model.Column{Name: field.Name}
	}
	if err := uniqueNames(names); err != nil {
		return nil, err
	}

	tr := array.NewTableReader(tbl, parquetChunkRows)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]any, rec.NumCols())
			for j := range row {
				v, err := arrowValue(rec.Column(j), i)
				if err != nil {
					return nil, fmt.Errorf("column %q row %d: %w", names[j], len(rs.Rows), err)
				}
				row[j] = v
			}
			if err := rs.Append(row); err != nil {
				return nil, err
			}
		}
	}
	if err := tr.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// arrowValue converts one cell of an Arrow array into a row-set cell.
func arrowValue(arr arrow.Array, i int) (any, error) {
	if arr.IsNull(i) {
		return nil, nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int8:
		return int64(a.Value(i)), nil
	case *array.Int16:
		return int64(a.Value(i)), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint8:
		return int64(a.Value(i)), nil
	case *array.Uint16:
		return int64(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint64:
		return int64(a.Value(i)), nil
	case *array.Float16:
		return float64(a.Value(i).Float32()), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Decimal128:
		dt := a.DataType().(*arrow.Decimal128Type)
		return a.Value(i).ToFloat64(dt.Scale), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Date32:
		return a.Value(i).ToTime().UTC(), nil
	case *array.Date64:
		return a.Value(i).ToTime().UTC(), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	}
	return arr.ValueStr(i), nil
}
