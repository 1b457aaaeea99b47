// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package fetch brings remote sales files into the local staging directory.
//
// Fetchers only copy files; they never consult the ledger. A file that is
// already staged with the same size is left alone.
package fetch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// Fetcher copies new remote files into the staging directory and returns
// the number of files it wrote.
type Fetcher interface {
	Fetch(ctx context.Context) (int, error)
}

// Nop is a Fetcher that does nothing. It is used when the staging
// directory is filled by some other process.
type Nop struct{}

// Fetch implements Fetcher.
func (Nop) Fetch(ctx context.Context) (int, error) {
	return 0, ctx.Err()
}

// isStaged reports whether path already exists in fs with the given size.
func isStaged(fs afero.Fs, path string, size int64) bool {
	fi, err := fs.Stat(path)
	return err == nil && !fi.IsDir() && fi.Size() == size
}

// stageFile writes r to path through a temporary ".part" file so that a
// scan never sees a partly written file. The ".part" extension is not a
// recognized format.
func stageFile(fs afero.Fs, path string, r io.Reader) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	tmp := path + ".part"
	if err := afero.WriteReader(fs, tmp, r); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// osFS is the default filesystem for fetchers.
func osFS() afero.Fs {
	return afero.NewOsFs()
}

