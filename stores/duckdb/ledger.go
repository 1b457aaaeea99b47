// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mdhender/salesingest/model"
)

// Initialize creates the ledger tables if they do not exist.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// ProcessedSet returns the names of every recorded file.
func (s *Store) ProcessedSet(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_name FROM processed_files`)
	if err != nil {
		return nil, fmt.Errorf("query processed files: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		set[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed files: %w", err)
	}
	return set, nil
}

// Record appends fileName to the ledger and drops any claim on it.
//
// DuckDB runs transactions optimistically: if another connection records
// the same name concurrently, one of the commits fails and is reported as
// a ledger write error.
func (s *Store) Record(ctx context.Context, fileName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_files WHERE file_name = ?`, fileName).Scan(&n)
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	if n != 0 {
		return &model.LedgerWriteError{FileName: fileName, Err: model.ErrAlreadyRecorded}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processed_files (file_name, processed_at)
		VALUES (?, ?)
	`, fileName, s.now().UTC())
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_claims WHERE file_name = ?`, fileName); err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	return nil
}

// Records returns the ledger ordered by processing time.
func (s *Store) Records(ctx context.Context) ([]model.ProcessedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, processed_at
		FROM processed_files
		ORDER BY processed_at, file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query processed files: %w", err)
	}
	defer rows.Close()

	var list []model.ProcessedFile
	for rows.Next() {
		var pf model.ProcessedFile
		if err := rows.Scan(&pf.FileName, &pf.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		pf.ProcessedAt = pf.ProcessedAt.UTC()
		list = append(list, pf)
	}
	return list, rows.Err()
}

// Claim marks fileName as being processed by owner.
// See the SQLite ledger for the claim rules; here the check and the write
// share one transaction and a conflicting commit loses the claim.
func (s *Store) Claim(ctx context.Context, fileName, owner string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	}
	defer tx.Rollback()

	var recorded int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_files WHERE file_name = ?`, fileName).Scan(&recorded)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	}
	if recorded != 0 {
		return false, model.ErrAlreadyRecorded
	}

	var claimedBy string
	var claimedAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT claimed_by, claimed_at
		FROM file_claims
		WHERE file_name = ?
	`, fileName).Scan(&claimedBy, &claimedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO file_claims (file_name, claimed_by, claimed_at)
			VALUES (?, ?, ?)
		`, fileName, owner, now)
	case err != nil:
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	case claimedBy != owner && !claimedAt.Before(now.Add(-ttl)):
		return false, nil
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE file_claims
			SET claimed_by = ?, claimed_at = ?
			WHERE file_name = ?
		`, owner, now, fileName)
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("claim %s: commit: %w", fileName, err)
	}
	return true, nil
}

// Release drops the claim on fileName if owner holds it.
func (s *Store) Release(ctx context.Context, fileName, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM file_claims
		WHERE file_name = ? AND claimed_by = ?
	`, fileName, owner)
	if err != nil {
		return fmt.Errorf("release %s: %w", fileName, err)
	}
	return nil
}

// Claims returns the outstanding claims, oldest first.
func (s *Store) Claims(ctx context.Context) ([]model.FileClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, claimed_by, claimed_at
		FROM file_claims
		ORDER BY claimed_at, file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var list []model.FileClaim
	for rows.Next() {
		var fc model.FileClaim
		if err := rows.Scan(&fc.FileName, &fc.ClaimedBy, &fc.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		fc.ClaimedAt = fc.ClaimedAt.UTC()
		list = append(list, fc)
	}
	return list, rows.Err()
}
