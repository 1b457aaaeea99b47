// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package model

import (
	"errors"
	"fmt"
)

// ErrAlreadyRecorded is wrapped by LedgerWriteError when the file name is already in the ledger.
var ErrAlreadyRecorded = errors.New("file already recorded")

// UnsupportedFormatError is returned when no loader handles a format tag.
type UnsupportedFormatError struct {
	Tag string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.Tag)
}

// DecodeError is returned when a file's content cannot be decoded.
type DecodeError struct {
	Path   string
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %s: %v", e.Format, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MissingColumnError is returned when a transform source column is not in the row-set schema.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Column)
}

// TypeMismatchError is returned when a transform source cell is not numeric.
// Row is zero-based.
type TypeMismatchError struct {
	Column string
	Row    int
	Value  any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("column %q row %d: %v (%T) is not numeric", e.Column, e.Row, e.Value, e.Value)
}

// ColumnConflictError is returned when a derived column already exists in the source.
type ColumnConflictError struct {
	Column string
}

func (e *ColumnConflictError) Error() string {
	return fmt.Sprintf("column %q already exists", e.Column)
}

// SinkWriteError is returned when appending to the destination table fails.
type SinkWriteError struct {
	Table string
	Err   error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("append %s: %v", e.Table, e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// LedgerWriteError is returned when a ledger record cannot be written.
type LedgerWriteError struct {
	FileName string
	Err      error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger record %s: %v", e.FileName, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}
