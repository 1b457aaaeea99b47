// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/mdhender/salesingest/config"
	"github.com/mdhender/salesingest/fetch"
	"github.com/mdhender/salesingest/loaders"
	"github.com/mdhender/salesingest/model"
	"github.com/mdhender/salesingest/pipelines/stages"
	"github.com/mdhender/salesingest/sinks"
	"github.com/mdhender/salesingest/stores/duckdb"
	"github.com/mdhender/salesingest/stores/memory"
	"github.com/mdhender/salesingest/stores/postgres"
	store "github.com/mdhender/salesingest/stores/sqlite"
	"github.com/rs/zerolog"
)

// claimLister is implemented by ledgers that can list outstanding claims.
type claimLister interface {
	Claims(ctx context.Context) ([]model.FileClaim, error)
}

// components holds the collaborators built from the configuration.
type components struct {
	ledger  stages.LedgerStore
	loader  stages.Loader
	sink    stages.Sink
	fetcher stages.Fetcher

	duckdbs map[string]*duckdb.Store
	closers []io.Closer
}

// Close closes every opened store, newest first.
func (c *components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openDuckDB returns the store for path, opening it once.
// DuckDB allows one open handle per database file.
func (c *components) openDuckDB(path string) (*duckdb.Store, error) {
	if s, ok := c.duckdbs[path]; ok && path != "" {
		return s, nil
	}
	s, err := duckdb.Open(path)
	if err != nil {
		return nil, err
	}
	c.duckdbs[path] = s
	c.closers = append(c.closers, s)
	return s, nil
}

// openLedger builds only the ledger, for the commands that need nothing else.
func openLedger(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{duckdbs: make(map[string]*duckdb.Store)}
	if err := c.buildLedger(ctx, cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// openComponents builds every collaborator of a run.
func openComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*components, error) {
	c := &components{duckdbs: make(map[string]*duckdb.Store)}
	for _, build := range []func() error{
		func() error { return c.buildLedger(ctx, cfg) },
		func() error { return c.buildLoader(cfg) },
		func() error { return c.buildSink(ctx, cfg, logger) },
		func() error { return c.buildFetcher(ctx, cfg, logger) },
	} {
		if err := build(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *components) buildLedger(ctx context.Context, cfg *config.Config) error {
	switch cfg.Ledger.Kind {
	case "sqlite":
		s, err := store.NewSQLiteStoreWithConfig(store.StoreConfig{Path: cfg.Ledger.DSN})
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		c.closers = append(c.closers, s)
		c.ledger = s
	case "duckdb":
		s, err := c.openDuckDB(cfg.Ledger.DSN)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		c.ledger = s
	case "postgres":
		s, err := postgres.New(ctx, cfg.Ledger.DSN)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		c.closers = append(c.closers, s)
		c.ledger = s
	case "memory":
		c.ledger = memory.NewLedger()
	default:
		return fmt.Errorf("ledger: unknown kind %q", cfg.Ledger.Kind)
	}
	return nil
}

func (c *components) buildLoader(cfg *config.Config) error {
	switch cfg.Loader.Engine {
	case "native":
		c.loader = loaders.Native()
	case "duckdb":
		s, err := c.openDuckDB(cfg.Loader.DuckDBPath)
		if err != nil {
			return fmt.Errorf("loader: %w", err)
		}
		c.loader = s
	default:
		return fmt.Errorf("loader: unknown engine %q", cfg.Loader.Engine)
	}
	return nil
}

func (c *components) buildSink(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var sink sinks.Sink
	switch cfg.Sink.Kind {
	case "postgres":
		s, err := postgres.New(ctx, cfg.Sink.DSN)
		if err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		c.closers = append(c.closers, s)
		sink = s
	case "duckdb":
		s, err := c.openDuckDB(cfg.Sink.DSN)
		if err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		sink = s
	case "memory":
		sink = memory.NewSink()
	default:
		return fmt.Errorf("sink: unknown kind %q", cfg.Sink.Kind)
	}

	if cfg.Sink.Breaker.MaxFailures > 0 {
		sink = sinks.NewBreaker(sink, sinks.BreakerSettings{
			MaxFailures: cfg.Sink.Breaker.MaxFailures,
			OpenTimeout: cfg.Sink.Breaker.OpenTimeout,
		}, logger.With().Str("component", "sink").Logger())
	}
	c.sink = sink
	return nil
}

func (c *components) buildFetcher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "fetch").Logger()
	switch cfg.Fetch.Kind {
	case "none":
		c.fetcher = fetch.Nop{}
	case "mirror":
		m := fetch.NewMirror(cfg.Fetch.SourceDir, cfg.StagingDir)
		m.SetLogger(logger)
		c.fetcher = m
	case "s3":
		f, err := fetch.NewS3Fetcher(ctx, cfg.Fetch.Bucket, cfg.Fetch.Prefix, cfg.StagingDir,
			fetch.WithConcurrency(cfg.Fetch.Concurrency),
			fetch.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		c.fetcher = f
	default:
		return fmt.Errorf("fetch: unknown kind %q", cfg.Fetch.Kind)
	}
	return nil
}
