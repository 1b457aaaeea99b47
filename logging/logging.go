// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package logging builds the zerolog loggers used by the commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	Level  string    // debug, info, warn or error; default info
	Format string    // console or json; default console
	Out    io.Writer // default os.Stderr
}

// New creates a logger with a timestamp and a component field.
func New(component string, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level: %w", err)
		}
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("log format: unknown %q", opts.Format)
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger(), nil
}

// LevelFromFlags maps the --quiet, --verbose and --debug flags onto a level.
// An empty result means the configured level is kept.
func LevelFromFlags(quiet, verbose, debug bool) string {
	switch {
	case debug:
		return "debug"
	case quiet:
		return "warn"
	case verbose:
		return "info"
	}
	return ""
}
