// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mdhender/salesingest/catalog"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Mirror copies recognized files from a mounted shared folder into the
// staging directory. Only the top level of the source is copied.
type Mirror struct {
	src    afero.Fs
	dst    afero.Fs
	srcDir string
	dstDir string
	logger zerolog.Logger
}

// NewMirror creates a Mirror from srcDir to dstDir on the local filesystem.
func NewMirror(srcDir, dstDir string) *Mirror {
	return &Mirror{
		src:    osFS(),
		dst:    osFS(),
		srcDir: srcDir,
		dstDir: dstDir,
		logger: zerolog.Nop(),
	}
}

// SetFS sets the source and destination filesystems (for testing).
func (m *Mirror) SetFS(src, dst afero.Fs) {
	m.src, m.dst = src, dst
}

// SetLogger sets the logger.
func (m *Mirror) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// Fetch implements Fetcher.
func (m *Mirror) Fetch(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(m.src, m.srcDir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", m.srcDir, err)
	}

	copied := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		if entry.IsDir() {
			continue
		}
		if _, ok := catalog.Classify(entry.Name()); !ok {
			continue
		}
		dstPath := filepath.Join(m.dstDir, entry.Name())
		if isStaged(m.dst, dstPath, entry.Size()) {
			continue
		}

		if err := m.copyFile(filepath.Join(m.srcDir, entry.Name()), dstPath); err != nil {
			return copied, err
		}
		m.logger.Debug().Str("file", entry.Name()).Int64("bytes", entry.Size()).Msg("mirrored")
		copied++
	}
	return copied, nil
}

func (m *Mirror) copyFile(srcPath, dstPath string) error {
	f, err := m.src.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer f.Close()
	return stageFile(m.dst, dstPath, f)
}
