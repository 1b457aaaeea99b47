// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package stages

import (
	"context"
	"errors"
	"time"

	"github.com/mdhender/salesingest/model"
	"github.com/mdhender/salesingest/transform"
	"github.com/rs/zerolog"
)

// processFile runs the per-file sub-flow for one candidate.
// Errors never escape; they are reported in the result.
func (s *IngestService) processFile(ctx context.Context, logger zerolog.Logger, c model.CandidateFile, processed map[string]bool, owner string) FileResult {
	started := time.Now()
	res := FileResult{FileName: c.Name, Path: c.Path, Format: c.Format}
	logger = logger.With().Str("file", c.Name).Logger()

	finish := func(status string) FileResult {
		res.Status = status
		res.Duration = time.Since(started)
		return res
	}
	failed := func(err error) FileResult {
		res.Code = ErrorCode(err)
		res.Error = err.Error()
		logger.Error().Err(err).Str("code", res.Code).Msg("file failed")
		return finish(StatusFailedPrefix + res.Code)
	}

	if processed[c.Name] {
		logger.Debug().Msg("already processed")
		return finish(StatusSkippedProcessed)
	}
	if s.opts.DryRun {
		logger.Info().Str("format", c.Format.String()).Msg("would process")
		return finish(StatusWouldProcess)
	}

	// Record drops the claim on success. A failure before the append
	// releases it so the next run can retry at once; after the append the
	// claim is kept until it expires.
	release := func() {}
	if claimer, ok := s.ledger.(Claimer); ok && s.opts.Claims {
		granted, err := claimer.Claim(ctx, c.Name, owner, s.opts.ClaimTTL)
		if errors.Is(err, model.ErrAlreadyRecorded) {
			// recorded by another run after the processed set was read
			logger.Info().Msg("recorded by another run")
			return finish(StatusSkippedProcessed)
		} else if err != nil {
			return failed(&ClaimError{FileName: c.Name, Err: err})
		}
		if !granted {
			logger.Info().Msg("claimed by another run")
			return finish(StatusSkippedClaimed)
		}
		release = func() {
			if err := claimer.Release(context.WithoutCancel(ctx), c.Name, owner); err != nil {
				logger.Warn().Err(err).Msg("release claim")
			}
		}
	}

	stageStarted := time.Now()
	rs, err := s.loader.Load(ctx, c.Path, c.Format)
	if err != nil {
		release()
		return failed(err)
	}
	s.metrics.ObserveStage("load", stageStarted)

	// an empty document has no rows to write, and no columns to check
	if len(rs.Columns) == 0 && rs.Len() == 0 {
		logger.Info().Msg("empty file")
		return s.record(ctx, logger, c, res, started)
	}

	stageStarted = time.Now()
	out, err := transform.SalesTotal(rs, s.opts.Transform)
	if err != nil {
		release()
		return failed(err)
	}
	s.metrics.ObserveStage("transform", stageStarted)

	stageStarted = time.Now()
	if err := s.sink.Append(ctx, out, s.opts.Table); err != nil {
		release()
		return failed(err)
	}
	s.metrics.ObserveStage("write", stageStarted)
	s.metrics.RecordRowsWritten(out.Len())
	res.Rows = out.Len()

	return s.record(ctx, logger, c, res, started)
}

// record writes the ledger entry for a file whose rows are already in the sink.
// It ignores cancellation of ctx; a stop request takes effect between files.
func (s *IngestService) record(ctx context.Context, logger zerolog.Logger, c model.CandidateFile, res FileResult, started time.Time) FileResult {
	stageStarted := time.Now()
	if err := s.ledger.Record(context.WithoutCancel(ctx), c.Name); err != nil {
		res.AtLeastOnce = res.Rows > 0
		res.Code = ErrorCode(err)
		res.Error = err.Error()
		logger.Error().Err(err).
			Str("code", res.Code).
			Str("table", s.opts.Table).
			Int("rows", res.Rows).
			Msg("rows appended but file not recorded: a later run will append them again")
		res.Status = StatusFailedPrefix + res.Code
		res.Duration = time.Since(started)
		return res
	}
	s.metrics.ObserveStage("record", stageStarted)

	logger.Info().Int("rows", res.Rows).Dur("elapsed", time.Since(started)).Msg("processed")
	res.Status = StatusProcessed
	res.Duration = time.Since(started)
	return res
}
