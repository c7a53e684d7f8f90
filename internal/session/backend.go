package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrRecordNotFound is returned by Backend.Read when the named record does
// not exist.
var ErrRecordNotFound = errors.New("record not found")

// Backend abstracts the durable storage the records live in. Implementations
// give no cross-process guarantees: concurrent writers are last-write-wins.
type Backend interface {
	// Read returns the raw record bytes, or ErrRecordNotFound.
	Read(name string) ([]byte, error)
	// Write persists the record, replacing any previous content.
	Write(name string, data []byte) error
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(name string) error
	// Exists reports whether the record is present.
	Exists(name string) bool
}

// FileBackend stores each record as a file under a state directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the state directory if needed and returns a backend
// rooted there. Records are written with owner-only permissions.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the state directory this backend writes into.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read record %s: %w", name, err)
	}
	return data, nil
}

func (b *FileBackend) Write(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(b.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write record %s: %w", name, err)
	}
	return nil
}

func (b *FileBackend) Delete(name string) error {
	err := os.Remove(filepath.Join(b.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete record %s: %w", name, err)
	}
	return nil
}

func (b *FileBackend) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(b.dir, name))
	return err == nil
}

// MemoryBackend keeps records in memory. It backs tests and throwaway runs.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (m *MemoryBackend) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[name]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryBackend) Write(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.records[name] = stored
	return nil
}

func (m *MemoryBackend) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func (m *MemoryBackend) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[name]
	return ok
}
