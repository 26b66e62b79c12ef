package store

import (
	"context"
	"fmt"
	"os"

	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
)

// FileBackend persists the document as a plain local file.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend over the given file path. The file is
// created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Name() string {
	return "file"
}

func (f *FileBackend) ReadBytes(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileBackend) WriteBytes(_ context.Context, data []byte) error {
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}
