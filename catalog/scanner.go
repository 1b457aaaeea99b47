// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package catalog lists the candidate files in a staging directory.
package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
)

// Error is returned when the staging directory cannot be listed.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// extensions maps a lower-case file extension to its format.
var extensions = map[string]model.Format{
	".csv":     model.FormatCSV,
	".json":    model.FormatJSON,
	".parquet": model.FormatParquet,
}

// Classify returns the format for a file name based on its extension.
// The second result is false for unrecognized extensions.
func Classify(name string) (model.Format, bool) {
	format, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return format, ok
}

// Scan lists the entries directly inside dir and returns those with a recognized extension.
// Sub-directories and unrecognized files are skipped without error.
// Results are in afero.ReadDir order, which is sorted by name.
func Scan(fs afero.Fs, dir string) ([]model.CandidateFile, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}

	var candidates []model.CandidateFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		format, ok := Classify(entry.Name())
		if !ok {
			continue
		}
		candidates = append(candidates, model.CandidateFile{
			Path:   filepath.Join(dir, entry.Name()),
			Name:   entry.Name(),
			Format: format,
		})
	}
	return candidates, nil
}
