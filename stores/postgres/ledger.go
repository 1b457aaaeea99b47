// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mdhender/salesingest/model"
)

// Initialize creates the ledger tables if they do not exist.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// ProcessedSet returns the names of every recorded file.
func (s *Store) ProcessedSet(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT file_name FROM processed_files`)
	if err != nil {
		return nil, fmt.Errorf("query processed files: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect processed files: %w", err)
	}

	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set, nil
}

// Record appends fileName to the ledger and drops any claim on it.
func (s *Store) Record(ctx context.Context, fileName string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO processed_files (file_name, processed_at)
			VALUES ($1, $2)
			ON CONFLICT (file_name) DO NOTHING
		`, fileName, s.now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrAlreadyRecorded
		}
		_, err = tx.Exec(ctx, `DELETE FROM file_claims WHERE file_name = $1`, fileName)
		return err
	})
	if err != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: err}
	}
	return nil
}

// Records returns the ledger ordered by processing time.
func (s *Store) Records(ctx context.Context) ([]model.ProcessedFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_name, processed_at
		FROM processed_files
		ORDER BY processed_at, file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query processed files: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ProcessedFile])
	if err != nil {
		return nil, fmt.Errorf("collect processed files: %w", err)
	}
	for i := range list {
		list[i].ProcessedAt = list[i].ProcessedAt.UTC()
	}
	return list, nil
}

// Claim atomically marks fileName as being processed by owner.
// The UPSERT grants the claim when the file is unrecorded and is either
// unclaimed, held by owner, or held by a claim older than ttl.
// A recorded file returns false with model.ErrAlreadyRecorded.
func (s *Store) Claim(ctx context.Context, fileName, owner string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO file_claims (file_name, claimed_by, claimed_at)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM processed_files WHERE file_name = $1)
		ON CONFLICT (file_name) DO UPDATE
			SET claimed_by = EXCLUDED.claimed_by,
			    claimed_at = EXCLUDED.claimed_at
			WHERE file_claims.claimed_at < $4 OR file_claims.claimed_by = EXCLUDED.claimed_by
	`, fileName, owner, now, now.Add(-ttl))
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	} else if tag.RowsAffected() == 1 {
		return true, nil
	}

	var recorded bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_files WHERE file_name = $1)`, fileName).Scan(&recorded)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fileName, err)
	} else if recorded {
		return false, model.ErrAlreadyRecorded
	}
	return false, nil
}

// Release drops the claim on fileName if owner holds it.
func (s *Store) Release(ctx context.Context, fileName, owner string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM file_claims
		WHERE file_name = $1 AND claimed_by = $2
	`, fileName, owner)
	if err != nil {
		return fmt.Errorf("release %s: %w", fileName, err)
	}
	return nil
}

// Claims returns the outstanding claims, oldest first.
func (s *Store) Claims(ctx context.Context) ([]model.FileClaim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_name, claimed_by, claimed_at
		FROM file_claims
		ORDER BY claimed_at, file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.FileClaim])
	if err != nil {
		return nil, fmt.Errorf("collect claims: %w", err)
	}
	for i := range list {
		list[i].ClaimedAt = list[i].ClaimedAt.UTC()
	}
	return list, nil
}
