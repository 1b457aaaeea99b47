// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package config handles loading and validation of salesingest.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mdhender/salesingest/transform"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file read when no path is given.
const DefaultFile = "salesingest.yaml"

// Config is the complete ingestion configuration.
type Config struct {
	StagingDir string            `yaml:"staging_dir"`
	Ledger     LedgerConfig      `yaml:"ledger"`
	Loader     LoaderConfig      `yaml:"loader"`
	Sink       SinkConfig        `yaml:"sink"`
	Transform  transform.Options `yaml:"transform"`
	Fetch      FetchConfig       `yaml:"fetch"`
	Log        LogConfig         `yaml:"log"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Kind     string        `yaml:"kind"` // sqlite, duckdb, postgres or memory
	DSN      string        `yaml:"dsn"`  // file path for sqlite and duckdb, URL for postgres
	Claims   *bool         `yaml:"claims"`
	ClaimTTL time.Duration `yaml:"claim_ttl"`
}

// ClaimsEnabled reports whether files are claimed before processing.
// Claims default to on for every backend except memory.
func (c LedgerConfig) ClaimsEnabled() bool {
	if c.Claims != nil {
		return *c.Claims
	}
	return c.Kind != "memory"
}

// LoaderConfig selects the loader engine.
type LoaderConfig struct {
	Engine     string `yaml:"engine"`      // native or duckdb
	DuckDBPath string `yaml:"duckdb_path"` // database used by the duckdb engine; empty means in-memory
}

// SinkConfig selects the destination table.
type SinkConfig struct {
	Kind    string        `yaml:"kind"` // postgres, duckdb or memory
	DSN     string        `yaml:"dsn"`
	Table   string        `yaml:"table"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the sink circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"` // zero disables the breaker
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// FetchConfig selects how remote files reach the staging directory.
type FetchConfig struct {
	Kind        string `yaml:"kind"` // none, mirror or s3
	SourceDir   string `yaml:"source_dir"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Concurrency int    `yaml:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the metrics textfile.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // empty disables metrics output
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		StagingDir: "staging",
		Ledger: LedgerConfig{
			Kind:     "sqlite",
			DSN:      "ledger.db",
			ClaimTTL: 30 * time.Minute,
		},
		Loader: LoaderConfig{Engine: "native"},
		Sink: SinkConfig{
			Kind:  "postgres",
			Table: "sales_computed",
			Breaker: BreakerConfig{
				MaxFailures: 3,
				OpenTimeout: time.Minute,
			},
		},
		Transform: transform.DefaultOptions(),
		Fetch:     FetchConfig{Kind: "none", Concurrency: 4},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is an error only when mustExist is set.
func Load(path string, mustExist bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !mustExist:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	applyEnv(cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SALESINGEST_STAGING_DIR"); v != "" {
		cfg.StagingDir = v
	}
	if v := getenv("SALESINGEST_LEDGER_DSN"); v != "" {
		cfg.Ledger.DSN = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Sink.DSN = v
	}
}

// Validate checks the configuration for missing or unknown values.
func (cfg *Config) Validate() error {
	if cfg.StagingDir == "" {
		return fmt.Errorf("staging_dir is required")
	}

	switch cfg.Ledger.Kind {
	case "sqlite", "duckdb", "postgres":
		if cfg.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required when ledger.kind is %s", cfg.Ledger.Kind)
		}
	case "memory":
	default:
		return fmt.Errorf("ledger.kind: unknown %q", cfg.Ledger.Kind)
	}
	if cfg.Ledger.ClaimsEnabled() && cfg.Ledger.ClaimTTL <= 0 {
		return fmt.Errorf("ledger.claim_ttl must be positive")
	}

	switch cfg.Loader.Engine {
	case "native", "duckdb":
	default:
		return fmt.Errorf("loader.engine: unknown %q", cfg.Loader.Engine)
	}

	switch cfg.Sink.Kind {
	case "postgres", "duckdb":
		if cfg.Sink.DSN == "" {
			return fmt.Errorf("sink.dsn (or DATABASE_URL) is required when sink.kind is %s", cfg.Sink.Kind)
		}
	case "memory":
	default:
		return fmt.Errorf("sink.kind: unknown %q", cfg.Sink.Kind)
	}
	if cfg.Sink.Table == "" {
		return fmt.Errorf("sink.table is required")
	}

	switch cfg.Fetch.Kind {
	case "none":
	case "mirror":
		if cfg.Fetch.SourceDir == "" {
			return fmt.Errorf("fetch.source_dir is required when fetch.kind is mirror")
		}
	case "s3":
		if cfg.Fetch.Bucket == "" {
			return fmt.Errorf("fetch.bucket is required when fetch.kind is s3")
		}
	default:
		return fmt.Errorf("fetch.kind: unknown %q", cfg.Fetch.Kind)
	}

	return nil
}
