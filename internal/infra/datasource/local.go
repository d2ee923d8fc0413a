package datasource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalDir serves seed files from a directory on disk.
type LocalDir struct {
	dir string
}

// NewLocalDir constructs a directory-backed source.
func NewLocalDir(dir string) *LocalDir {
	return &LocalDir{dir: dir}
}

// List returns the CSV file names in the directory.
func (s *LocalDir) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".csv") {
			names = append(names, name)
		}
	}
	return names, nil
}

// Open opens a file for reading.
func (s *LocalDir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, name))
}

var _ Source = (*LocalDir)(nil)
