// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package stages_test

import (
	"context"
	"sync"
	"testing"

	"github.com/mdhender/salesingest/loaders"
	"github.com/mdhender/salesingest/model"
	"github.com/mdhender/salesingest/pipelines/stages"
	"github.com/mdhender/salesingest/stores/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const stagingDir = "/staging"

// fixture wires an IngestService to in-memory collaborators.
type fixture struct {
	fs     afero.Fs
	ledger *faultLedger
	loader *countingLoader
	sink   *memory.Sink
	svc    *stages.IngestService
}

func newFixture(t *testing.T, files map[string]string, opts stages.Options) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(stagingDir, 0o755))
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, stagingDir+"/"+name, []byte(body), 0o644))
	}

	registry := loaders.Native()
	registry.SetFS(fs)

	f := &fixture{
		fs:     fs,
		ledger: &faultLedger{Ledger: memory.NewLedger()},
		loader: &countingLoader{next: registry},
		sink:   memory.NewSink(),
	}
	opts.StagingDir = stagingDir
	f.svc = stages.NewIngestService(f.ledger, f.loader, f.sink, opts)
	f.svc.SetFS(fs)
	return f
}

func (f *fixture) recorded(t *testing.T) map[string]bool {
	t.Helper()
	set, err := f.ledger.ProcessedSet(context.Background())
	require.NoError(t, err)
	return set
}

// faultLedger is a memory ledger with injectable failures.
type faultLedger struct {
	*memory.Ledger
	initErr   error
	readErr   error
	recordErr error
	// afterRead runs once the processed set has been read.
	afterRead func()
}

func (l *faultLedger) Initialize(ctx context.Context) error {
	if l.initErr != nil {
		return l.initErr
	}
	return l.Ledger.Initialize(ctx)
}

func (l *faultLedger) ProcessedSet(ctx context.Context) (map[string]bool, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	set, err := l.Ledger.ProcessedSet(ctx)
	if err == nil && l.afterRead != nil {
		l.afterRead()
	}
	return set, err
}

func (l *faultLedger) Record(ctx context.Context, fileName string) error {
	if l.recordErr != nil {
		return &model.LedgerWriteError{FileName: fileName, Err: l.recordErr}
	}
	return l.Ledger.Record(ctx, fileName)
}

// plainLedger hides the Claimer methods of a memory ledger.
type plainLedger struct {
	l *memory.Ledger
}

func (p plainLedger) Initialize(ctx context.Context) error { return p.l.Initialize(ctx) }
func (p plainLedger) ProcessedSet(ctx context.Context) (map[string]bool, error) {
	return p.l.ProcessedSet(ctx)
}
func (p plainLedger) Record(ctx context.Context, name string) error { return p.l.Record(ctx, name) }
func (p plainLedger) Records(ctx context.Context) ([]model.ProcessedFile, error) {
	return p.l.Records(ctx)
}

// countingLoader counts the files it is asked to load.
type countingLoader struct {
	mu     sync.Mutex
	next   stages.Loader
	calls  []string
	onLoad func()
}

func (l *countingLoader) Load(ctx context.Context, path string, format model.Format) (*model.RowSet, error) {
	l.mu.Lock()
	l.calls = append(l.calls, path)
	hook := l.onLoad
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	return l.next.Load(ctx, path, format)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// failingSink rejects every append.
type failingSink struct {
	err error
}

func (s failingSink) Append(_ context.Context, _ *model.RowSet, table string) error {
	return &model.SinkWriteError{Table: table, Err: s.err}
}

// cancellingSink appends to a memory sink, then cancels the run.
type cancellingSink struct {
	next   *memory.Sink
	cancel context.CancelFunc
}

func (s cancellingSink) Append(ctx context.Context, rs *model.RowSet, table string) error {
	if err := s.next.Append(ctx, rs, table); err != nil {
		return err
	}
	s.cancel()
	return nil
}

// stageFetcher writes files into the staging directory when fetched.
type stageFetcher struct {
	fs    afero.Fs
	files map[string]string
	err   error
}

func (f stageFetcher) Fetch(context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for name, body := range f.files {
		if err := afero.WriteFile(f.fs, stagingDir+"/"+name, []byte(body), 0o644); err != nil {
			return 0, err
		}
	}
	return len(f.files), nil
}

func resultsByName(report *stages.RunReport) map[string]stages.FileResult {
	m := make(map[string]stages.FileResult, len(report.Files))
	for _, r := range report.Files {
		m[r.FileName] = r
	}
	return m
}
