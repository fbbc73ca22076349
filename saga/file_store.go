package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON file per saga in a directory.
type FileStore[T any] struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates basePath if needed.
func NewFileStore[T any](basePath string) (*FileStore[T], error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileStore[T]{
		basePath: basePath,
	}, nil
}

// Save replaces the saga's file. The new content is written to a temporary
// file and renamed over the old one, so a reader never sees a partial entry.
func (f *FileStore[T]) Save(_ context.Context, sagaID string, state State[T]) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(f.basePath, sagaID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.filename(sagaID)); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (f *FileStore[T]) Load(_ context.Context, sagaID string) (*State[T], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.filename(sagaID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, sagaID)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// Delete removes the saga's file. Deleting an unknown saga is not an error.
func (f *FileStore[T]) Delete(_ context.Context, sagaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filename(sagaID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

func (f *FileStore[T]) filename(sagaID string) string {
	return filepath.Join(f.basePath, sagaID+".json")
}
