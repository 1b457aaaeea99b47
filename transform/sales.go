// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package transform computes derived columns on a row-set.
package transform

import (
	"github.com/mdhender/salesingest/model"
)

// Options names the columns used by SalesTotal.
type Options struct {
	QuantityColumn string `yaml:"quantity_column"`
	PriceColumn    string `yaml:"price_column"`
	TotalColumn    string `yaml:"total_column"`
}

// DefaultOptions returns the column names used by the sales spreadsheets.
func DefaultOptions() Options {
	return Options{
		QuantityColumn: "quantidade",
		PriceColumn:    "valor",
		TotalColumn:    "total_sales",
	}
}

// withDefaults fills empty names from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.QuantityColumn == "" {
		o.QuantityColumn = d.QuantityColumn
	}
	if o.PriceColumn == "" {
		o.PriceColumn = d.PriceColumn
	}
	if o.TotalColumn == "" {
		o.TotalColumn = d.TotalColumn
	}
	return o
}

// SalesTotal returns a new row-set with one extra float column holding quantity * price.
//
// The input is not modified. Every source column and the row order are preserved.
// A nil quantity or price yields a nil total, the way SQL multiplication treats NULL.
func SalesTotal(rs *model.RowSet, opts Options) (*model.RowSet, error) {
	opts = opts.withDefaults()

	qty := rs.Index(opts.QuantityColumn)
	if qty < 0 {
		return nil, &model.MissingColumnError{Column: opts.QuantityColumn}
	}
	price := rs.Index(opts.PriceColumn)
	if price < 0 {
		return nil, &model.MissingColumnError{Column: opts.PriceColumn}
	}
	if rs.Index(opts.TotalColumn) >= 0 {
		return nil, &model.ColumnConflictError{Column: opts.TotalColumn}
	}

	out := &model.RowSet{
		Columns: make([]model.Column, 0, len(rs.Columns)+1),
		Rows:    make([][]any, 0, len(rs.Rows)),
	}
	out.Columns = append(out.Columns, rs.Columns...)
	out.Columns = append(out.Columns, model.Column{Name: opts.TotalColumn, Type: model.TypeFloat})

	for i, row := range rs.Rows {
		total, err := multiply(row, i, qty, price, opts)
		if err != nil {
			return nil, err
		}
		// the three-index slice forces append to copy rather than write into the caller's array
		out.Rows = append(out.Rows, append(row[:len(row):len(row)], total))
	}
	return out, nil
}

func multiply(row []any, i, qty, price int, opts Options) (any, error) {
	qv, pv := row[qty], row[price]
	q, ok := model.Numeric(qv)
	if !ok && qv != nil {
		return nil, &model.TypeMismatchError{Column: opts.QuantityColumn, Row: i, Value: qv}
	}
	p, ok := model.Numeric(pv)
	if !ok && pv != nil {
		return nil, &model.TypeMismatchError{Column: opts.PriceColumn, Row: i, Value: pv}
	}
	if qv == nil || pv == nil {
		return nil, nil
	}
	return q * p, nil
}
