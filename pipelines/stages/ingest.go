// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package stages runs the ingestion pipeline: fetch, scan, and the
// per-file load, transform, write and record steps.
package stages

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mdhender/salesingest/catalog"
	"github.com/mdhender/salesingest/metrics"
	"github.com/mdhender/salesingest/model"
	"github.com/mdhender/salesingest/transform"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// LedgerStore defines the ledger operations needed by IngestService.
type LedgerStore interface {
	Initialize(ctx context.Context) error
	ProcessedSet(ctx context.Context) (map[string]bool, error)
	Record(ctx context.Context, fileName string) error
	Records(ctx context.Context) ([]model.ProcessedFile, error)
}

// Claimer is implemented by ledgers that can reserve a file for one run.
// Claim reports model.ErrAlreadyRecorded when the file is already in the ledger.
type Claimer interface {
	Claim(ctx context.Context, fileName, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, fileName, owner string) error
}

// Loader decodes a staged file into a row-set.
type Loader interface {
	Load(ctx context.Context, path string, format model.Format) (*model.RowSet, error)
}

// Sink appends a row-set to a table.
type Sink interface {
	Append(ctx context.Context, rs *model.RowSet, table string) error
}

// Fetcher brings remote files into the staging directory.
type Fetcher interface {
	Fetch(ctx context.Context) (int, error)
}

// Options configures an IngestService.
type Options struct {
	StagingDir string
	Table      string
	Transform  transform.Options
	// Claims enables claiming each file before it is loaded.
	// It has no effect when the ledger does not implement Claimer.
	Claims   bool
	ClaimTTL time.Duration
	// DryRun reports which files would be processed without loading,
	// writing or recording anything.
	DryRun bool
}

// IngestService moves new staged files into the sink, at most once each.
type IngestService struct {
	ledger  LedgerStore
	loader  Loader
	sink    Sink
	fetcher Fetcher
	opts    Options
	fs      afero.Fs
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewIngestService creates a new IngestService.
func NewIngestService(ledger LedgerStore, loader Loader, sink Sink, opts Options) *IngestService {
	if opts.Table == "" {
		opts.Table = "sales_computed"
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 30 * time.Minute
	}
	return &IngestService{
		ledger: ledger,
		loader: loader,
		sink:   sink,
		opts:   opts,
		fs:     afero.NewOsFs(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
}

// SetFS sets the filesystem for testing.
func (s *IngestService) SetFS(fs afero.Fs) {
	s.fs = fs
}

// SetFetcher sets the fetcher run before each scan. The default is no fetch.
func (s *IngestService) SetFetcher(f Fetcher) {
	s.fetcher = f
}

// SetLogger sets the logger.
func (s *IngestService) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetMetrics sets the metrics. A nil value disables metrics.
func (s *IngestService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// newOwner returns the claim owner for a run, following the worker id
// convention of host and process id.
func newOwner(runID string) string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), runID)
}

// Run executes one ingestion run.
//
// Fatal errors (ledger initialize, fetch, scan, ledger read) stop the run
// before any file is touched. Per-file failures are recorded in the report
// and never stop the run. If ctx is cancelled the run stops between files
// and returns the partial report with ctx.Err().
//
// The returned report is never nil.
func (s *IngestService) Run(ctx context.Context) (*RunReport, error) {
	runID := ulid.Make().String()
	report := &RunReport{
		RunID:     runID,
		Owner:     newOwner(runID),
		StartedAt: s.now().UTC(),
		DryRun:    s.opts.DryRun,
		Files:     []FileResult{},
	}
	logger := s.logger.With().Str("run", runID).Logger()

	fail := func(err error) (*RunReport, error) {
		report.State = StateFailed
		report.Error = err.Error()
		report.FinishedAt = s.now().UTC()
		s.metrics.RecordRunFinished(report.FinishedAt)
		logger.Error().Err(err).Str("code", ErrorCode(err)).Msg("run failed")
		return report, err
	}

	logger.Debug().Str("state", "init").Msg("ingest")
	if err := s.ledger.Initialize(ctx); err != nil {
		return fail(&LedgerInitError{Err: err})
	}

	if s.fetcher != nil {
		logger.Debug().Str("state", "fetching").Msg("ingest")
		started := time.Now()
		n, err := s.fetcher.Fetch(ctx)
		if err != nil {
			return fail(&FetchError{Err: err})
		}
		s.metrics.ObserveStage("fetch", started)
		report.Fetched = n
		logger.Info().Int("files", n).Msg("fetched")
	}

	logger.Debug().Str("state", "scanning").Msg("ingest")
	candidates, err := catalog.Scan(s.fs, s.opts.StagingDir)
	if err != nil {
		return fail(err)
	}
	processed, err := s.ledger.ProcessedSet(ctx)
	if err != nil {
		return fail(&LedgerReadError{Err: err})
	}
	report.Counts.Candidates = len(candidates)
	logger.Info().Int("candidates", len(candidates)).Int("recorded", len(processed)).Msg("scanned")

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		res := s.processFile(ctx, logger, c, processed, report.Owner)
		s.metrics.RecordFile(res.Status)
		report.add(res)
	}

	report.State = StateDone
	report.FinishedAt = s.now().UTC()
	s.metrics.RecordRunFinished(report.FinishedAt)
	logger.Info().
		Int("processed", report.Counts.Processed).
		Int("skipped", report.Counts.Skipped+report.Counts.Claimed).
		Int("failed", report.Counts.Failed).
		Int("rows", report.Counts.RowsWritten).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("run done")
	return report, nil
}

// Scan lists the candidate files and whether each is already recorded,
// without fetching or changing anything.
func (s *IngestService) Scan(ctx context.Context) ([]model.CandidateFile, map[string]bool, error) {
	if err := s.ledger.Initialize(ctx); err != nil {
		return nil, nil, &LedgerInitError{Err: err}
	}
	candidates, err := catalog.Scan(s.fs, s.opts.StagingDir)
	if err != nil {
		return nil, nil, err
	}
	processed, err := s.ledger.ProcessedSet(ctx)
	if err != nil {
		return nil, nil, &LedgerReadError{Err: err}
	}
	return candidates, processed, nil
}
