// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package model

import (
	"fmt"
	"strings"
	"time"
)

// ProcessedFile is one row in the ingestion ledger.
// FileName is unique for the lifetime of the ledger; rows are never updated or deleted.
type ProcessedFile struct {
	FileName    string    `json:"fileName"    db:"file_name"`
	ProcessedAt time.Time `json:"processedAt" db:"processed_at"`
}

// FileClaim marks a file as being processed by one run.
// Claims are deleted when the file is recorded or released, and expire after a TTL.
type FileClaim struct {
	FileName  string    `json:"fileName"  db:"file_name"`
	ClaimedBy string    `json:"claimedBy" db:"claimed_by"`
	ClaimedAt time.Time `json:"claimedAt" db:"claimed_at"`
}

// Format is the decoder family for a candidate file.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatJSON
	FormatParquet
)

// String implements the Stringer interface.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// MarshalText implements the encoding.TextMarshaler interface.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ParseFormat converts a format tag ("csv", "json", "parquet") into a Format.
func ParseFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(tag, ".")) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	}
	return FormatUnknown, &UnsupportedFormatError{Tag: tag}
}

// CandidateFile is a file in the staging directory that is eligible for processing.
// It is derived from the directory contents on every run and never persisted.
type CandidateFile struct {
	Path   string `json:"path"`
	Name   string `json:"name"` // basename of Path, the ledger key
	Format Format `json:"format"`
}
