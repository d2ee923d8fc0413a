// Package datasource enumerates seed CSV files from a local folder or an
// S3-compatible bucket.
package datasource

import (
	"context"
	"io"
)

// Source lists and opens seed files by name.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
