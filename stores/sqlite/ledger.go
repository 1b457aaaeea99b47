// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mdhender/salesingest/model"
)

// Initialize creates the ledger tables if they do not exist.
// It never drops or truncates existing records.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// ProcessedSet returns the names of every recorded file.
func (s *SQLiteStore) ProcessedSet(ctx context.Context) (map[string]bool, error) {
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
// If the name is already recorded the ledger is left unchanged and the
// returned error wraps model.ErrAlreadyRecorded.
func (s *SQLiteStore) Record(ctx context.Context, fileName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO processed_files (file_name, processed_at)
		VALUES (?, ?)
		ON CONFLICT (file_name) DO NOTHING
	`, fileName, formatTime(s.now()))
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	if n == 0 {
		return &model.LedgerWriteError{FileName: fileName, Err: model.ErrAlreadyRecorded}
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
func (s *SQLiteStore) Records(ctx context.Context) ([]model.ProcessedFile, error) {
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
		var processedAt string
		if err := rows.Scan(&pf.FileName, &processedAt); err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		pf.ProcessedAt = parseTime(processedAt)
		list = append(list, pf)
	}
	return list, rows.Err()
}

// Claim atomically marks fileName as being processed by owner.
//
// The claim is granted when the file is not recorded and is either unclaimed,
// already held by owner, or held by a claim older than ttl.
// A single UPSERT makes check and claim one statement, so two runs
// racing for the same file cannot both be granted it.
// A recorded file returns false with model.ErrAlreadyRecorded.
func (s *SQLiteStore) Claim(ctx context.Context, fileName, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO file_claims (file_name, claimed_by, claimed_at)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM processed_files WHERE file_name = ?)
		ON CONFLICT (file_name) DO UPDATE
			SET claimed_by = excluded.claimed_by,
			    claimed_at = excluded.claimed_at
			WHERE file_claims.claimed_at < ? OR file_claims.claimed_by = excluded.claimed_by
	`, fileName, owner, formatTime(now), fileName, formatTime(now.Add(-ttl)))
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s: rows affected: %w", fileName, err)
	} else if n == 1 {
		return true, nil
	}

	var recorded bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM processed_files WHERE file_name = ?)`, fileName).Scan(&recorded)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	} else if recorded {
		return false, model.ErrAlreadyRecorded
	}
	return false, nil
}

// Release drops the claim on fileName if owner holds it.
func (s *SQLiteStore) Release(ctx context.Context, fileName, owner string) error {
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
func (s *SQLiteStore) Claims(ctx context.Context) ([]model.FileClaim, error) {
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
		fc, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, fc)
	}
	return list, rows.Err()
}

func scanClaim(rows *sql.Rows) (model.FileClaim, error) {
	var fc model.FileClaim
	var claimedAt string
	if err := rows.Scan(&fc.FileName, &fc.ClaimedBy, &claimedAt); err != nil {
		return fc, fmt.Errorf("scan claim: %w", err)
	}
	fc.ClaimedAt = parseTime(claimedAt)
	return fc, nil
}
