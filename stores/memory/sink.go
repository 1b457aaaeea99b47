// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package memory

import (
	"context"
	"sync"

	"github.com/mdhender/salesingest/model"
)

// Sink keeps appended row-sets per table.
type Sink struct {
	mu      sync.RWMutex
	batches map[string][]*model.RowSet
}

// NewSink creates a new empty Sink.
func NewSink() *Sink {
	return &Sink{batches: make(map[string][]*model.RowSet)}
}

// Append stores rs under table.
func (s *Sink) Append(ctx context.Context, rs *model.RowSet, table string) error {
	if err := ctx.Err(); err != nil {
		return &model.SinkWriteError{Table: table, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[table] = append(s.batches[table], rs)
	return nil
}

// Batches returns the row-sets appended to table, in order.
func (s *Sink) Batches(table string) []*model.RowSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.RowSet, len(s.batches[table]))
	copy(result, s.batches[table])
	return result
}

// Rows returns every row appended to table.
func (s *Sink) Rows(table string) [][]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows [][]any
	for _, rs := range s.batches[table] {
		rows = append(rows, rs.Rows...)
	}
	return rows
}

// Stats returns basic statistics about the sink.
func (s *Sink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Tables: len(s.batches)}
	for _, list := range s.batches {
		st.Batches += len(list)
		for _, rs := range list {
			st.Rows += rs.Len()
		}
	}
	return st
}

// Stats holds sink statistics.
type Stats struct {
	Tables  int
	Batches int
	Rows    int
}
