// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package loaders decodes staged files into row-sets.
package loaders

import (
	"context"
	"fmt"
	"sync"

	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
)

// LoadFunc decodes the file at path into a row-set.
type LoadFunc func(ctx context.Context, fs afero.Fs, path string) (*model.RowSet, error)

// Registry dispatches a load to the function registered for the file's format.
// The zero value is not usable; call NewRegistry or Native.
type Registry struct {
	fs    afero.Fs
	mu    sync.RWMutex
	funcs map[model.Format]LoadFunc
}

// NewRegistry returns an empty registry that reads from the OS filesystem.
func NewRegistry() *Registry {
	return &Registry{
		fs:    afero.NewOsFs(),
		funcs: make(map[model.Format]LoadFunc),
	}
}

// Native returns a registry with the built-in CSV, JSON and Parquet decoders.
func Native() *Registry {
	r := NewRegistry()
	r.Register(model.FormatCSV, LoadCSV)
	r.Register(model.FormatJSON, LoadJSON)
	r.Register(model.FormatParquet, LoadParquet)
	return r
}

// SetFS sets the filesystem for testing.
func (r *Registry) SetFS(fs afero.Fs) {
	r.fs = fs
}

// Register sets the load function for a format, replacing any earlier one.
func (r *Registry) Register(format model.Format, fn LoadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[format] = fn
}

// Load decodes the file using the function registered for format.
// It returns an UnsupportedFormatError if nothing is registered.
func (r *Registry) Load(ctx context.Context, path string, format model.Format) (*model.RowSet, error) {
	r.mu.RLock()
	fn, ok := r.funcs[format]
	r.mu.RUnlock()
	if !ok {
		return nil, &model.UnsupportedFormatError{Tag: format.String()}
	}
	return fn(ctx, r.fs, path)
}

// decodeError wraps err as a DecodeError unless it already is one.
func decodeError(path string, format model.Format, err error) error {
	if _, ok := err.(*model.DecodeError); ok {
		return err
	}
	return &model.DecodeError{Path: path, Format: format, Err: err}
}

// uniqueNames checks that a header does not repeat or omit column names.
func uniqueNames(names []string) error {
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if name == "" {
			return fmt.Errorf("column %d: empty name", i+1)
		}
		if seen[name] {
			return fmt.Errorf("column %q: duplicate name", name)
		}
		seen[name] = true
	}
	return nil
}
