// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package stages_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mdhender/salesingest/catalog"
	"github.com/mdhender/salesingest/model"
	"github.com/mdhender/salesingest/pipelines/stages"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var salesFiles = map[string]string{
	"vendas_jan.csv":  "produto,quantidade,valor\ncaneta,2,3.5\nlapis,0,10\n",
	"vendas_fev.json": `[{"produto": "borracha", "quantidade": 4, "valor": 1.25}]`,
	"leia-me.txt":     "not a sales file",
}

func TestIngestService_ProcessesNewFiles(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{Claims: true})

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, stages.StateDone, report.State)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Counts.Candidates, "leia-me.txt is not a candidate")
	assert.Equal(t, 2, report.Counts.Processed)
	assert.Equal(t, 3, report.Counts.RowsWritten)
	assert.False(t, report.HasFailures())

	results := resultsByName(report)
	assert.Equal(t, stages.StatusProcessed, results["vendas_jan.csv"].Status)
	assert.Equal(t, 2, results["vendas_jan.csv"].Rows)
	assert.Equal(t, stages.StatusProcessed, results["vendas_fev.json"].Status)

	assert.Equal(t, map[string]bool{"vendas_jan.csv": true, "vendas_fev.json": true}, f.recorded(t))

	batches := f.sink.Batches("sales_computed")
	require.Len(t, batches, 2)
	// files are processed in name order: vendas_fev.json, vendas_jan.csv
	jan := batches[1]
	assert.Equal(t, []string{"produto", "quantidade", "valor", "total_sales"}, jan.Names())
	assert.Equal(t, 7.0, jan.Rows[0][3])
	assert.Equal(t, 0.0, jan.Rows[1][3])

	claims, err := f.ledger.Claims(context.Background())
	require.NoError(t, err)
	assert.Empty(t, claims, "recording drops the claims")
}

func TestIngestService_SecondRunIsNoOp(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{Claims: true})
	ctx := context.Background()

	_, err := f.svc.Run(ctx)
	require.NoError(t, err)
	rowsAfterFirst := len(f.sink.Rows("sales_computed"))
	loadsAfterFirst := f.loader.count()

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Counts.Skipped)
	assert.Zero(t, report.Counts.Processed)
	for _, r := range report.Files {
		assert.Equal(t, stages.StatusSkippedProcessed, r.Status)
	}
	assert.Len(t, f.sink.Rows("sales_computed"), rowsAfterFirst, "no new sink rows")
	assert.Equal(t, loadsAfterFirst, f.loader.count(), "recorded files are never loaded")
	assert.Len(t, f.recorded(t), 2, "no new ledger rows")
}

func TestIngestService_NewFileOnlyOnRerun(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{})
	ctx := context.Background()
	_, err := f.svc.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(f.fs, stagingDir+"/vendas_mar.csv", []byte("quantidade,valor\n1,1\n"), 0o644))
	report, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.Processed)
	assert.Equal(t, 2, report.Counts.Skipped)
	assert.Equal(t, stages.StatusProcessed, resultsByName(report)["vendas_mar.csv"].Status)
}

func TestIngestService_NeverRecordsFailedFiles(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a_sem_valor.csv": "produto,quantidade\ncaneta,2\n",
		"b_quebrado.json": `[{"quantidade": 1`,
		"c_texto.csv":     "quantidade,valor\nduas,3.5\n",
		"d_conflito.csv":  "quantidade,valor,total_sales\n1,2,3\n",
		"e_ok.csv":        "quantidade,valor\n2,3.5\n",
	}, stages.Options{Claims: true})

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err, "per-file failures never fail the run")

	results := resultsByName(report)
	assert.Equal(t, "failed:MISSING_COLUMN", results["a_sem_valor.csv"].Status)
	assert.Contains(t, results["a_sem_valor.csv"].Error, "valor")
	assert.Equal(t, "failed:DECODE", results["b_quebrado.json"].Status)
	assert.Equal(t, "failed:TYPE_MISMATCH", results["c_texto.csv"].Status)
	assert.Equal(t, "failed:COLUMN_CONFLICT", results["d_conflito.csv"].Status)
	assert.Equal(t, stages.StatusProcessed, results["e_ok.csv"].Status)

	assert.Equal(t, 4, report.Counts.Failed)
	assert.True(t, report.HasFailures())
	assert.Equal(t, map[string]bool{"e_ok.csv": true}, f.recorded(t))
	assert.Len(t, f.sink.Rows("sales_computed"), 1)

	claims, err := f.ledger.Claims(context.Background())
	require.NoError(t, err)
	assert.Empty(t, claims, "failed files release their claims")

	// failed files are retried on the next run
	loads := f.loader.count()
	_, err = f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, loads+4, f.loader.count())
}

func TestIngestService_SinkFailureIsNotRecorded(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{Claims: true})
	svc := stages.NewIngestService(f.ledger, f.loader, failingSink{err: errors.New("connection refused")}, stages.Options{
		StagingDir: stagingDir,
		Claims:     true,
	})
	svc.SetFS(f.fs)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Counts.Failed)
	for _, r := range report.Files {
		assert.Equal(t, "failed:SINK_WRITE", r.Status)
		assert.False(t, r.AtLeastOnce)
	}
	assert.Empty(t, f.recorded(t))
}

func TestIngestService_RecordFailureIsAtLeastOnce(t *testing.T) {
	f := newFixture(t, map[string]string{"vendas.csv": "quantidade,valor\n2,3.5\n"}, stages.Options{Claims: true})
	f.ledger.recordErr = errors.New("disk I/O error")

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	res := resultsByName(report)["vendas.csv"]
	assert.Equal(t, "failed:LEDGER_WRITE", res.Status)
	assert.True(t, res.AtLeastOnce)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 1, report.Counts.AtLeastOnce)
	assert.Len(t, f.sink.Rows("sales_computed"), 1, "rows were appended")
	assert.Empty(t, f.recorded(t), "but the file is not recorded")

	claims, err := f.ledger.Claims(context.Background())
	require.NoError(t, err)
	assert.Len(t, claims, 1, "the claim is kept until it expires")
}

func TestIngestService_FatalErrors(t *testing.T) {
	boom := errors.New("boom")
	for _, tc := range []struct {
		name  string
		setup func(f *fixture)
		code  string
	}{
		{"ledger initialize", func(f *fixture) { f.ledger.initErr = boom }, stages.ErrCodeLedgerInit},
		{"ledger read", func(f *fixture) { f.ledger.readErr = boom }, stages.ErrCodeLedgerRead},
		{"fetch", func(f *fixture) { f.svc.SetFetcher(stageFetcher{err: boom}) }, stages.ErrCodeFetch},
		{"catalog", func(f *fixture) { require.NoError(t, f.fs.RemoveAll(stagingDir)) }, stages.ErrCodeCatalog},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, salesFiles, stages.Options{})
			tc.setup(f)

			report, err := f.svc.Run(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.code, stages.ErrorCode(err))
			require.NotNil(t, report)
			assert.Equal(t, stages.StateFailed, report.State)
			assert.Empty(t, report.Files)
			assert.Zero(t, f.loader.count(), "no file is touched after a fatal error")
			assert.Empty(t, f.sink.Rows("sales_computed"))
		})
	}

	t.Run("missing staging dir is a catalog error", func(t *testing.T) {
		f := newFixture(t, nil, stages.Options{})
		require.NoError(t, f.fs.RemoveAll(stagingDir))
		_, err := f.svc.Run(context.Background())
		var catErr *catalog.Error
		assert.True(t, errors.As(err, &catErr))
	})
}

func TestIngestService_FetchesBeforeScan(t *testing.T) {
	f := newFixture(t, nil, stages.Options{})
	f.svc.SetFetcher(stageFetcher{fs: f.fs, files: map[string]string{
		"remoto.csv": "quantidade,valor\n3,2\n",
	}})

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Counts.Processed)
	assert.Equal(t, 6.0, f.sink.Rows("sales_computed")[0][2])
}

func TestIngestService_DryRun(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{DryRun: true, Claims: true})
	require.NoError(t, f.ledger.Record(context.Background(), "vendas_jan.csv"))

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	results := resultsByName(report)
	assert.Equal(t, stages.StatusSkippedProcessed, results["vendas_jan.csv"].Status)
	assert.Equal(t, stages.StatusWouldProcess, results["vendas_fev.json"].Status)
	assert.Equal(t, 1, report.Counts.WouldProcess)
	assert.Zero(t, f.loader.count())
	assert.Empty(t, f.sink.Rows("sales_computed"))
	assert.Len(t, f.recorded(t), 1)
	claims, _ := f.ledger.Claims(context.Background())
	assert.Empty(t, claims)
}

func TestIngestService_CancelStopsBetweenFiles(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.csv": "quantidade,valor\n1,1\n",
		"b.csv": "quantidade,valor\n1,1\n",
		"c.csv": "quantidade,valor\n1,1\n",
	}, stages.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.loader.onLoad = cancel

	report, err := f.svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, stages.StateFailed, report.State)
	require.Len(t, report.Files, 1, "the run stops after the file in progress")
	assert.Equal(t, 1, f.loader.count())
	assert.Empty(t, f.recorded(t))
}

func TestIngestService_CancelDuringAppendStillRecords(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.csv": "quantidade,valor\n1,1\n",
		"b.csv": "quantidade,valor\n2,2\n",
	}, stages.Options{Claims: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := stages.NewIngestService(f.ledger, f.loader, cancellingSink{next: f.sink, cancel: cancel}, stages.Options{
		StagingDir: stagingDir,
		Claims:     true,
	})
	svc.SetFS(f.fs)

	report, err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Files, 1, "the run stops after the file in progress")
	res := report.Files[0]
	assert.Equal(t, stages.StatusProcessed, res.Status)
	assert.False(t, res.AtLeastOnce)
	assert.Equal(t, map[string]bool{"a.csv": true}, f.recorded(t))

	// the next run picks up b.csv and does not append a.csv again
	report, err = f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts.Processed)
	assert.Equal(t, 1, report.Counts.Skipped)
	assert.Len(t, f.sink.Rows("sales_computed"), 2)
}

func TestIngestService_RecordedAfterScanIsSkipped(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{Claims: true})
	f.ledger.afterRead = func() {
		// another run records the file between the scan and the claim
		require.NoError(t, f.ledger.Ledger.Record(context.Background(), "vendas_jan.csv"))
	}

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	results := resultsByName(report)
	assert.Equal(t, stages.StatusSkippedProcessed, results["vendas_jan.csv"].Status)
	assert.Equal(t, stages.StatusProcessed, results["vendas_fev.json"].Status)
	assert.Equal(t, 1, report.Counts.Skipped)
	assert.Zero(t, report.Counts.Claimed)
	assert.Equal(t, 1, f.loader.count(), "the recorded file is not loaded")
}

func TestIngestService_EmptyDocumentIsRecorded(t *testing.T) {
	f := newFixture(t, map[string]string{"vendas_vazio.json": "[]"}, stages.Options{Claims: true})

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	res := resultsByName(report)["vendas_vazio.json"]
	assert.Equal(t, stages.StatusProcessed, res.Status)
	assert.Zero(t, res.Rows)
	assert.Empty(t, f.sink.Batches("sales_computed"), "nothing to write")
	assert.Equal(t, map[string]bool{"vendas_vazio.json": true}, f.recorded(t))

	report, err = f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts.Skipped, "an empty file is not retried")
}

func TestIngestService_CustomTableAndColumns(t *testing.T) {
	f := newFixture(t, map[string]string{"sales.csv": "qty,price\n2,5\n"}, stages.Options{})
	opts := stages.Options{StagingDir: stagingDir, Table: "daily_sales"}
	opts.Transform.QuantityColumn = "qty"
	opts.Transform.PriceColumn = "price"
	opts.Transform.TotalColumn = "amount"
	svc := stages.NewIngestService(f.ledger, f.loader, f.sink, opts)
	svc.SetFS(f.fs)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.sink.Batches("sales_computed"))
	batches := f.sink.Batches("daily_sales")
	require.Len(t, batches, 1)
	assert.Equal(t, map[string]any{"qty": int64(2), "price": int64(5), "amount": 10.0}, batches[0].Row(0))
}

func TestIngestService_Scan(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{})
	require.NoError(t, f.ledger.Record(context.Background(), "vendas_fev.json"))

	candidates, processed, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "vendas_fev.json", candidates[0].Name)
	assert.Equal(t, model.FormatJSON, candidates[0].Format)
	assert.True(t, processed["vendas_fev.json"])
	assert.False(t, processed["vendas_jan.csv"])
	assert.Zero(t, f.loader.count())
}

func TestRunReport_WriteJSON(t *testing.T) {
	f := newFixture(t, salesFiles, stages.Options{})
	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	out := afero.NewMemMapFs()
	require.NoError(t, report.WriteJSON(out, "/reports/run.json"))
	data, err := afero.ReadFile(out, "/reports/run.json")
	require.NoError(t, err)

	var decoded struct {
		RunID  string `json:"runId"`
		State  string `json:"state"`
		Counts struct {
			Processed int `json:"processed"`
		} `json:"counts"`
		Files []struct {
			FileName string `json:"fileName"`
			Format   string `json:"format"`
			Status   string `json:"status"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Equal(t, "done", decoded.State)
	assert.Equal(t, 2, decoded.Counts.Processed)
	require.Len(t, decoded.Files, 2)
	assert.Equal(t, "json", decoded.Files[0].Format)
	assert.True(t, report.FinishedAt.Sub(report.StartedAt) < time.Minute)
}
