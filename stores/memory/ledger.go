// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package memory implements the ledger and sink in process memory.
// Nothing survives a restart; it backs tests and throwaway local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mdhender/salesingest/model"
)

// Ledger is an in-memory ingestion ledger with claims.
type Ledger struct {
	mu        sync.RWMutex
	now       func() time.Time
	processed map[string]time.Time
	claims    map[string]model.FileClaim
}

// NewLedger creates a new empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		now:       time.Now,
		processed: make(map[string]time.Time),
		claims:    make(map[string]model.FileClaim),
	}
}

// SetClock sets the time source for testing.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Initialize is a no-op; the maps are created by NewLedger.
func (l *Ledger) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// ProcessedSet returns a copy of the recorded names.
func (l *Ledger) ProcessedSet(ctx context.Context) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	set := make(map[string]bool, len(l.processed))
	for name := range l.processed {
		set[name] = true
	}
	return set, nil
}

// Record adds fileName to the ledger and drops any claim on it.
func (l *Ledger) Record(ctx context.Context, fileName string) error {
	if err := ctx.Err(); err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.processed[fileName]; ok {
		return &model.LedgerWriteError{FileName: fileName, Err: model.ErrAlreadyRecorded}
	}
	l.processed[fileName] = l.now().UTC()
	delete(l.claims, fileName)
	return nil
}

// Records returns the ledger ordered by processing time.
func (l *Ledger) Records(ctx context.Context) ([]model.ProcessedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := make([]model.ProcessedFile, 0, len(l.processed))
	for name, at := range l.processed {
		list = append(list, model.ProcessedFile{FileName: name, ProcessedAt: at})
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].ProcessedAt.Equal(list[j].ProcessedAt) {
			return list[i].ProcessedAt.Before(list[j].ProcessedAt)
		}
		return list[i].FileName < list[j].FileName
	})
	return list, nil
}

// Claim marks fileName as being processed by owner.
// The rules match the SQL ledgers: recorded files are never claimed,
// owners may renew, and claims older than ttl are taken over.
func (l *Ledger) Claim(ctx context.Context, fileName, owner string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.processed[fileName]; ok {
		return false, model.ErrAlreadyRecorded
	}
	now := l.now().UTC()
	if fc, ok := l.claims[fileName]; ok && fc.ClaimedBy != owner && !fc.ClaimedAt.Before(now.Add(-ttl)) {
		return false, nil
	}
	l.claims[fileName] = model.FileClaim{FileName: fileName, ClaimedBy: owner, ClaimedAt: now}
	return true, nil
}

// Release drops the claim on fileName if owner holds it.
func (l *Ledger) Release(ctx context.Context, fileName, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fc, ok := l.claims[fileName]; ok && fc.ClaimedBy == owner {
		delete(l.claims, fileName)
	}
	return nil
}

// Claims returns the outstanding claims, oldest first.
func (l *Ledger) Claims(ctx context.Context) ([]model.FileClaim, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := make([]model.FileClaim, 0, len(l.claims))
	for _, fc := range l.claims {
		list = append(list, fc)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].ClaimedAt.Equal(list[j].ClaimedAt) {
			return list[i].ClaimedAt.Before(list[j].ClaimedAt)
		}
		return list[i].FileName < list[j].FileName
	})
	return list, nil
}
