// Package store provides the durable key-value persistence backend for the
// event queue. The queue only requires this minimal map contract, not a
// specific storage technology.
package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for absent keys.
type storeError string

func (e storeError) Error() string { return string(e) }

const ErrNotFound = storeError("key not found")

// Store is a durable string-keyed byte map.
// Implementations must make Set durable before returning.
type Store interface {
	// Get retrieves the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set durably writes the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear deletes every key.
	Clear(ctx context.Context) error

	// Name returns the backend name for logging/debugging.
	Name() string
}

// MemoryStore is an in-process Store for tests and ephemeral use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites forces Set to fail; used to exercise persistence
	// error paths in tests.
	FailWrites bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get retrieves a value.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Set stores a value.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if s.FailWrites {
		return storeError("write failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Remove deletes a key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Clear deletes all keys.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

// Name returns "memory".
func (s *MemoryStore) Name() string { return "memory" }

// FileStore persists each key as a file under a directory.
// Writes go to a temp file first, then rename (atomic).
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// path maps a key to a file path. Path separators in keys are flattened so a
// key can never escape the store directory.
func (s *FileStore) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return filepath.Join(s.dir, safe+".kv")
}

// Get retrieves a value.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set durably writes a value.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, value, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Remove deletes a key.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear deletes every key.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".kv" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Name returns "file".
func (s *FileStore) Name() string { return "file" }
