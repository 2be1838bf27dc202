package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps each payload as one file under a base directory, named
// by its key. Keys are UUIDs, so no path escaping is needed.
//
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated payload behind.
type FSStore struct {
	basePath string
}

// NewFSStore creates the base directory if needed and returns a store
// rooted there.
func NewFSStore(ctx context.Context, basePath string) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if basePath == "" {
		return nil, fmt.Errorf("fs blob store: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("fs blob store: %w", err)
	}
	return &FSStore{basePath: basePath}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.basePath, key)
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("fs blob store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("fs blob store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("fs blob store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("fs blob store: %w", err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("fs blob store: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fs blob store: %w", err)
	}
	return nil
}

func (s *FSStore) Close() error { return nil }
