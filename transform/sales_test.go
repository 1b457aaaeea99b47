// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package transform_test

import (
	"errors"
	"testing"

	"github.com/mdhender/salesingest/model"
	"github.com/mdhender/salesingest/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesRows() *model.RowSet {
	return &model.RowSet{
		Columns: []model.Column{
			{Name: "produto", Type: model.TypeString},
			{Name: "quantidade", Type: model.TypeInt},
			{Name: "valor", Type: model.TypeFloat},
		},
		Rows: [][]any{
			{"caneta", int64(2), 3.5},
			{"lapis", int64(0), 10.0},
		},
	}
}

func TestSalesTotal(t *testing.T) {
	in := salesRows()

	out, err := transform.SalesTotal(in, transform.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"produto", "quantidade", "valor", "total_sales"}, out.Names())
	assert.Equal(t, model.TypeFloat, out.Columns[3].Type)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []any{"caneta", int64(2), 3.5, 7.0}, out.Rows[0])
	assert.Equal(t, []any{"lapis", int64(0), 10.0, 0.0}, out.Rows[1])
}

func TestSalesTotal_DoesNotModifyInput(t *testing.T) {
	in := salesRows()
	// spare capacity would let a careless append write into the caller's backing array
	in.Rows[0] = append(make([]any, 0, 8), in.Rows[0]...)

	_, err := transform.SalesTotal(in, transform.DefaultOptions())
	require.NoError(t, err)

	assert.Len(t, in.Columns, 3)
	assert.Len(t, in.Rows[0], 3)
	assert.Len(t, in.Rows[0][:4], 4)
	assert.Nil(t, in.Rows[0][:4][3])
}

func TestSalesTotal_MissingColumn(t *testing.T) {
	in := &model.RowSet{
		Columns: []model.Column{{Name: "quantidade", Type: model.TypeInt}},
		Rows:    [][]any{{int64(1)}},
	}

	_, err := transform.SalesTotal(in, transform.DefaultOptions())
	var missing *model.MissingColumnError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "valor", missing.Column)
}

func TestSalesTotal_MissingBothNamesQuantity(t *testing.T) {
	in := &model.RowSet{Columns: []model.Column{{Name: "produto"}}}

	_, err := transform.SalesTotal(in, transform.Options{})
	var missing *model.MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "quantidade", missing.Column)
}

func TestSalesTotal_TypeMismatch(t *testing.T) {
	in := salesRows()
	in.Rows = append(in.Rows, []any{"borracha", int64(1), "3,50"})

	_, err := transform.SalesTotal(in, transform.DefaultOptions())
	var mismatch *model.TypeMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "valor", mismatch.Column)
	assert.Equal(t, 2, mismatch.Row)
	assert.Equal(t, "3,50", mismatch.Value)
}

func TestSalesTotal_NullPropagates(t *testing.T) {
	in := salesRows()
	in.Rows = append(in.Rows, []any{"borracha", nil, 2.0})

	out, err := transform.SalesTotal(in, transform.DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, out.Rows[2][3])
}

func TestSalesTotal_ColumnConflict(t *testing.T) {
	in := salesRows()
	in.Columns = append(in.Columns, model.Column{Name: "total_sales", Type: model.TypeFloat})
	for i := range in.Rows {
		in.Rows[i] = append(in.Rows[i], 0.0)
	}

	_, err := transform.SalesTotal(in, transform.DefaultOptions())
	var conflict *model.ColumnConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "total_sales", conflict.Column)
}

func TestSalesTotal_CustomColumns(t *testing.T) {
	in := &model.RowSet{
		Columns: []model.Column{{Name: "qty", Type: model.TypeInt}, {Name: "price", Type: model.TypeInt}},
		Rows:    [][]any{{int64(3), int64(4)}},
	}

	out, err := transform.SalesTotal(in, transform.Options{QuantityColumn: "qty", PriceColumn: "price", TotalColumn: "total_vendas"})
	require.NoError(t, err)
	assert.Equal(t, "total_vendas", out.Columns[2].Name)
	assert.Equal(t, 12.0, out.Rows[0][2])
}

func TestSalesTotal_EmptyRowSet(t *testing.T) {
	in := salesRows()
	in.Rows = nil

	out, err := transform.SalesTotal(in, transform.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Len(t, out.Columns, 4)
}
