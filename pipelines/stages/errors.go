// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package stages

import (
	"errors"
	"fmt"

	"github.com/mdhender/salesingest/catalog"
	"github.com/mdhender/salesingest/model"
)

// LedgerInitError is returned when the ledger cannot be initialized. It is fatal for the run.
type LedgerInitError struct {
	Err error
}

func (e *LedgerInitError) Error() string {
	return fmt.Sprintf("ledger initialize: %v", e.Err)
}

func (e *LedgerInitError) Unwrap() error {
	return e.Err
}

// LedgerReadError is returned when the processed set cannot be read. It is fatal for the run.
type LedgerReadError struct {
	Err error
}

func (e *LedgerReadError) Error() string {
	return fmt.Sprintf("ledger read: %v", e.Err)
}

func (e *LedgerReadError) Unwrap() error {
	return e.Err
}

// FetchError is returned when the remote fetch fails. It is fatal for the run.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClaimError is returned when a file claim cannot be taken.
type ClaimError struct {
	FileName string
	Err      error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim %s: %v", e.FileName, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// Error code constants reported per file and per run.
const (
	ErrCodeLedgerInit        = "LEDGER_INIT"
	ErrCodeLedgerRead        = "LEDGER_READ"
	ErrCodeFetch             = "FETCH"
	ErrCodeCatalog           = "CATALOG"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeDecode            = "DECODE"
	ErrCodeMissingColumn     = "MISSING_COLUMN"
	ErrCodeTypeMismatch      = "TYPE_MISMATCH"
	ErrCodeColumnConflict    = "COLUMN_CONFLICT"
	ErrCodeSinkWrite         = "SINK_WRITE"
	ErrCodeClaim             = "CLAIM"
	ErrCodeLedgerWrite       = "LEDGER_WRITE"
	ErrCodeUnknown           = "UNKNOWN"
)

// ErrorCode returns the error code string for a given error.
// Wrapped errors are matched, so a code survives fmt.Errorf("...: %w").
func ErrorCode(err error) string {
	var (
		ledgerInit  *LedgerInitError
		ledgerRead  *LedgerReadError
		fetchErr    *FetchError
		catalogErr  *catalog.Error
		unsupported *model.UnsupportedFormatError
		decodeErr   *model.DecodeError
		missing     *model.MissingColumnError
		mismatch    *model.TypeMismatchError
		conflict    *model.ColumnConflictError
		sinkErr     *model.SinkWriteError
		claimErr    *ClaimError
		ledgerWrite *model.LedgerWriteError
	)
	switch {
	case errors.As(err, &ledgerInit):
		return ErrCodeLedgerInit
	case errors.As(err, &ledgerRead):
		return ErrCodeLedgerRead
	case errors.As(err, &fetchErr):
		return ErrCodeFetch
	case errors.As(err, &catalogErr):
		return ErrCodeCatalog
	case errors.As(err, &unsupported):
		return ErrCodeUnsupportedFormat
	case errors.As(err, &decodeErr):
		return ErrCodeDecode
	case errors.As(err, &missing):
		return ErrCodeMissingColumn
	case errors.As(err, &mismatch):
		return ErrCodeTypeMismatch
	case errors.As(err, &conflict):
		return ErrCodeColumnConflict
	case errors.As(err, &sinkErr):
		return ErrCodeSinkWrite
	case errors.As(err, &claimErr):
		return ErrCodeClaim
	case errors.As(err, &ledgerWrite):
		return ErrCodeLedgerWrite
	default:
		return ErrCodeUnknown
	}
}
