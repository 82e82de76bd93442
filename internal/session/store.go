package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists the credential across process restarts. The credential
// lives under a single well-known location and is removed on logout.
type Store interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileStore keeps the token in a mode-0600 file, the CLI analogue of the
// browser's single localStorage key.
type FileStore struct {
	path string
}

// NewFileStore builds a store rooted at path. The parent directory is
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the token file location, for watchers.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("token file read: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("token dir create: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("token file write: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("token file remove: %w", err)
	}
	return nil
}

// MemoryStore is the in-process store used by tests and by callers that opt
// out of persistence.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
