// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package stages

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
)

// File status values reported in FileResult.Status.
// Failures are reported as StatusFailedPrefix followed by the error code.
const (
	StatusSkippedProcessed = "skipped-already-processed"
	StatusSkippedClaimed   = "skipped-claimed"
	StatusProcessed        = "processed-successfully"
	StatusWouldProcess     = "would-process"
	StatusFailedPrefix     = "failed:"
)

// Run states reported in RunReport.State.
const (
	StateDone   = "done"
	StateFailed = "failed"
)

// FileResult is the outcome of one candidate file.
type FileResult struct {
	FileName string       `json:"fileName"`
	Path     string       `json:"path"`
	Format   model.Format `json:"format"`
	Status   string       `json:"status"`
	Code     string       `json:"code,omitempty"`
	Error    string       `json:"error,omitempty"`
	Rows     int          `json:"rows,omitempty"`
	// AtLeastOnce is set when the rows were appended but the ledger record failed,
	// so a later run will append them again.
	AtLeastOnce bool          `json:"atLeastOnce,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Failed reports whether the file ended in a failure state.
func (r FileResult) Failed() bool {
	return r.Code != ""
}

// Counts summarizes the file results of a run.
type Counts struct {
	Candidates   int `json:"candidates"`
	Processed    int `json:"processed"`
	Skipped      int `json:"skipped"`
	Claimed      int `json:"claimed"`
	Failed       int `json:"failed"`
	WouldProcess int `json:"wouldProcess"`
	AtLeastOnce  int `json:"atLeastOnce"`
	RowsWritten  int `json:"rowsWritten"`
}

// RunReport describes one ingestion run.
type RunReport struct {
	RunID      string       `json:"runId"`
	Owner      string       `json:"owner"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	State      string       `json:"state"`
	Error      string       `json:"error,omitempty"`
	DryRun     bool         `json:"dryRun,omitempty"`
	Fetched    int          `json:"fetched"`
	Files      []FileResult `json:"files"`
	Counts     Counts       `json:"counts"`
}

func (r *RunReport) add(res FileResult) {
	r.Files = append(r.Files, res)
	switch {
	case res.Status == StatusProcessed:
		r.Counts.Processed++
		r.Counts.RowsWritten += res.Rows
	case res.Status == StatusSkippedProcessed:
		r.Counts.Skipped++
	case res.Status == StatusSkippedClaimed:
		r.Counts.Claimed++
	case res.Status == StatusWouldProcess:
		r.Counts.WouldProcess++
	case res.Failed():
		r.Counts.Failed++
		if res.AtLeastOnce {
			r.Counts.AtLeastOnce++
			r.Counts.RowsWritten += res.Rows
		}
	}
}

// HasFailures reports whether the run failed or any file failed.
func (r *RunReport) HasFailures() bool {
	return r.State == StateFailed || r.Counts.Failed > 0
}

// WriteJSON writes the report as indented JSON to path.
func (r *RunReport) WriteJSON(fs afero.Fs, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
