package store

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

// FileStore persists credentials as a single JSON document on disk. It is
// the default backend: a local, device-like store that survives restarts.
// The whole document is rewritten atomically on every mutation, so a clear
// can never be observed half-applied.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at the given path. The file is
// created lazily on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Save stores the value for the kind.
func (s *FileStore) Save(_ context.Context, kind Kind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[kind] = value
	return s.write(values)
}

// Load returns the stored value and whether it was present.
func (s *FileStore) Load(_ context.Context, kind Kind) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	value, ok := values[kind]
	return value, ok, nil
}

// Clear removes the given kinds.
func (s *FileStore) Clear(_ context.Context, kinds ...Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	for _, kind := range kinds {
		delete(values, kind)
	}
	return s.write(values)
}

// ClearAll removes every enumerated kind in one rewrite.
func (s *FileStore) ClearAll(ctx context.Context) error {
	return s.Clear(ctx, AllKinds()...)
}

func (s *FileStore) read() (map[Kind]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[Kind]string), nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	values := make(map[Kind]string)
	if len(raw) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode credential file: %w", err)
	}
	return values, nil
}

func (s *FileStore) write(values map[Kind]string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
