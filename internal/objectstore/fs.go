package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Veraticus/txnflow/internal/common"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const tempPrefix = ".tmp-"

// FSStore keeps objects as files below a base directory. Keys map to
// slash-separated relative paths.
type FSStore struct {
	fs       afero.Fs
	basePath string
}

var _ ObjectStore = (*FSStore)(nil)

// NewFSStore creates the base directory if needed.
func NewFSStore(fs afero.Fs, basePath string) (*FSStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("%w: object store base path", common.ErrMissingConfig)
	}
	if err := fs.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{fs: fs, basePath: basePath}, nil
}

func (f *FSStore) fullPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(f.basePath, filepath.FromSlash(clean[1:])), nil
}

// Put writes the object to a temporary file and renames it into place so a
// concurrent List never returns a partially written object.
func (f *FSStore) Put(ctx context.Context, key string, body []byte, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := f.fullPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := f.fs.MkdirAll(dir, 0o750); err != nil {
		return common.Transient("put "+key, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp := filepath.Join(dir, tempPrefix+uuid.NewString())
	if err := afero.WriteFile(f.fs, tmp, body, 0o640); err != nil {
		_ = f.fs.Remove(tmp)
		return common.Transient("put "+key, fmt.Errorf("failed to write file: %w", err))
	}
	if err := f.fs.Rename(tmp, full); err != nil {
		_ = f.fs.Remove(tmp)
		return common.Transient("put "+key, fmt.Errorf("failed to rename file: %w", err))
	}
	return nil
}

// Get reads a whole object.
func (f *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := f.fullPath(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(f.fs, full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, key)
		}
		return nil, common.Transient("get "+key, err)
	}
	return data, nil
}

// List walks the directory holding prefix and returns the matching keys sorted.
func (f *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := f.basePath
	if dir := path.Dir(prefix); dir != "." && dir != "/" {
		root = filepath.Join(f.basePath, filepath.FromSlash(dir))
	}

	exists, err := afero.DirExists(f.fs, root)
	if err != nil {
		return nil, common.Transient("list "+prefix, err)
	}
	if !exists {
		return []string{}, nil
	}

	keys := []string{}
	err = afero.Walk(f.fs, root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(f.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, common.Transient("list "+prefix, fmt.Errorf("failed to list objects: %w", err))
	}

	sort.Strings(keys)
	return keys, nil
}

// Close implements ObjectStore.
func (f *FSStore) Close() error {
	return nil
}
