package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// FileSource reads the dataset from local CSV files.
type FileSource struct {
	fs               afero.Fs
	transactionsPath string
	importancePath   string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source over the given paths. An empty importance
// path means the dataset has no importance table.
func NewFileSource(fs afero.Fs, transactionsPath, importancePath string) *FileSource {
	return &FileSource{fs: fs, transactionsPath: transactionsPath, importancePath: importancePath}
}

// Name implements Source.
func (f *FileSource) Name() string {
	return "file:" + f.transactionsPath
}

// Transactions implements Source.
func (f *FileSource) Transactions(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := f.fs.Open(f.transactionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.transactionsPath, err)
	}
	return file, nil
}

// Importance implements Source.
func (f *FileSource) Importance(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.importancePath == "" {
		return nil, ErrImportanceMissing
	}
	file, err := f.fs.Open(f.importancePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrImportanceMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.importancePath, err)
	}
	return file, nil
}
