package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
)

// FileKV keeps all values in one JSON object on disk
// Mutations rewrite the file through a temp file and rename
type FileKV struct {
	path string

	mu sync.Mutex
}

func NewFileKV(path string) (*FileKV, error) {
	if path == "" {
		return nil, errors.New("file path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("can't create directory for %s. Err: %w", path, err)
	}

	return &FileKV{path: path}, nil
}

func (f *FileKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}

	v, ok := values[key]
	if !ok {
		return "", apperrors.ErrKeyNotFound
	}
	return v, nil
}

func (f *FileKV) Set(_ context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}

	values[key] = value
	return f.write(values)
}

func (f *FileKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}

	for _, k := range keys {
		delete(values, k)
	}
	return f.write(values)
}

func (f *FileKV) read() (map[string]string, error) {
	values := make(map[string]string)

	blob, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return values, nil
	case err != nil:
		return nil, fmt.Errorf("can't read %s. Err: %w", f.path, err)
	}

	if len(blob) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(blob, &values); err != nil {
		return nil, fmt.Errorf("file %s is corrupted. Err: %w", f.path, err)
	}
	return values, nil
}

func (f *FileKV) write(values map[string]string) error {
	blob, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("can't create temp file. Err: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("can't write temp file. Err: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}
