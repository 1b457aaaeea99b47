// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package loaders

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
)

// LoadCSV decodes a CSV file with a header row.
// The delimiter is sniffed from the header (semicolon or comma) and column types are inferred.
func LoadCSV(ctx context.Context, fs afero.Fs, path string) (*model.RowSet, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, decodeError(path, model.FormatCSV, err)
	}
	rs, err := decodeCSV(ctx, data)
	if err != nil {
		return nil, decodeError(path, model.FormatCSV, err)
	}
	return rs, nil
}

func decodeCSV(ctx context.Context, data []byte) (*model.RowSet, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file")
	} else if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := uniqueNames(header); err != nil {
		return nil, err
	}

	// read everything as text first so each column's type can be chosen from all of its cells
	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	columns := make([]model.Column, len(header))
	cells := make([]string, len(records))
	for j, name := range header {
		for i, record := range records {
			cells[i] = strings.TrimSpace(record[j])
		}
		columns[j] = model.Column{Name: name, Type: inferColumn(cells)}
	}

	rs := &model.RowSet{Columns: columns, Rows: make([][]any, 0, len(records))}
	for _, record := range records {
		row := make([]any, len(columns))
		for j, col := range columns {
			cell := strings.TrimSpace(record[j])
			if cell == "" && col.Type != model.TypeString {
				continue
			}
			row[j], _ = parseCell(cell, col.Type)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// sniffDelimiter returns ';' when the header line has more semicolons than commas.
func sniffDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
