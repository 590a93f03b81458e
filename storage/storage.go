// Package storage abstracts where the pretrained model artifacts live so
// the loader can read them from a local directory or an S3-compatible
// bucket without changing code.
package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore is a read-only view of an artifact location.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close the
	// returned ReadCloser. A missing file yields an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Location returns a human readable URI of path, for logs and reports.
	Location(path string) string
}

// ReadAll reads the whole named file from store.
func ReadAll(ctx context.Context, store FileStore, path string) ([]byte, error) {
	rc, err := store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", store.Location(path), err)
	}
	return data, nil
}
