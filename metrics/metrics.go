// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package metrics provides Prometheus metrics for ingestion runs.
//
// A batch job has no scrape endpoint, so metrics are written to a
// node_exporter textfile at the end of each run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ingestion metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FilesTotal    *prometheus.CounterVec
	RowsWritten   prometheus.Counter
	StageDuration *prometheus.HistogramVec
	LastRun       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salesingest",
			Name:      "files_total",
			Help:      "Files seen by ingestion runs, by final status",
		},
		[]string{"status"},
	)

	m.RowsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salesingest",
			Name:      "rows_written_total",
			Help:      "Rows appended to the sink",
		},
	)

	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "salesingest",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each per-file stage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
		[]string{"stage"},
	)

	m.LastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "salesingest",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last ingestion run finished",
		},
	)

	m.registry.MustRegister(
		m.FilesTotal,
		m.RowsWritten,
		m.StageDuration,
		m.LastRun,
	)

	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordFile increments the file counter for status.
func (m *Metrics) RecordFile(status string) {
	if m != nil {
		m.FilesTotal.WithLabelValues(status).Inc()
	}
}

// RecordRowsWritten adds n to the rows written counter.
func (m *Metrics) RecordRowsWritten(n int) {
	if m != nil {
		m.RowsWritten.Add(float64(n))
	}
}

// ObserveStage records the time spent in stage since started.
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	}
}

// RecordRunFinished sets the last run timestamp.
func (m *Metrics) RecordRunFinished(at time.Time) {
	if m != nil {
		m.LastRun.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the metrics in the text exposition format.
// The file is written to a temporary name and renamed, so a collector
// never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
