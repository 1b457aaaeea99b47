// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package sinks holds wrappers that apply to any sink writer.
package sinks

import (
	"context"
	"errors"
	"time"

	"github.com/mdhender/salesingest/model"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Sink appends a row-set to a named table.
type Sink interface {
	Append(ctx context.Context, rs *model.RowSet, table string) error
}

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive append failures that open the breaker.
	// Zero disables the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting one append through.
	OpenTimeout time.Duration
}

// Breaker stops calling a failing sink.
// Once open, appends fail fast with a SinkWriteError wrapping gobreaker.ErrOpenState,
// so the affected files stay unrecorded and are retried on the next run.
type Breaker struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. The logger receives breaker state changes.
func NewBreaker(next Sink, settings BreakerSettings, logger zerolog.Logger) *Breaker {
	maxFailures := settings.MaxFailures
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sink",
			MaxRequests: 1,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return maxFailures > 0 && counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				// a cancelled run says nothing about the sink
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("sink breaker state changed")
			},
		}),
	}
}

// Append forwards to the wrapped sink unless the breaker is open.
func (b *Breaker) Append(ctx context.Context, rs *model.RowSet, table string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Append(ctx, rs, table)
	})
	if err == nil {
		return nil
	}
	var sinkErr *model.SinkWriteError
	if errors.As(err, &sinkErr) {
		return err
	}
	return &model.SinkWriteError{Table: table, Err: err}
}

// State reports the breaker state ("closed", "half-open" or "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
