// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package loaders

import (
	"strconv"
	"strings"
	"time"

	"github.com/mdhender/salesingest/model"
)

// timeLayouts are tried, in order, when sniffing date and timestamp columns.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// inferColumn picks the narrowest type that parses every non-empty cell in the column.
// Empty cells are treated as NULL and do not take part in the vote.
func inferColumn(cells []string) model.ColumnType {
	candidates := []model.ColumnType{model.TypeInt, model.TypeFloat, model.TypeBool, model.TypeTime}
	seen := false
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		seen = true
		kept := candidates[:0]
		for _, ct := range candidates {
			if _, ok := parseCell(cell, ct); ok {
				kept = append(kept, ct)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return model.TypeString
		}
	}
	if !seen {
		return model.TypeNull
	}
	return candidates[0]
}

// parseCell converts text to a value of the given type.
// Text columns and NULL columns keep the raw string.
func parseCell(cell string, ct model.ColumnType) (any, bool) {
	switch ct {
	case model.TypeInt:
		n, err := strconv.ParseInt(cell, 10, 64)
		return n, err == nil
	case model.TypeFloat:
		f, err := strconv.ParseFloat(cell, 64)
		return f, err == nil
	case model.TypeBool:
		switch strings.ToLower(cell) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	case model.TypeTime:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, cell); err == nil {
				return t, true
			}
		}
		return nil, false
	}
	return cell, true
}
