package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// DefaultStorageKey is the key a cart is stored under. Per-session carts
// append ":<session>".
const DefaultStorageKey = "cart-storage"

var (
	// ErrNotFound is returned by Load when nothing is stored under key
	ErrNotFound = errors.New("cart: no stored cart")

	// ErrCorrupt is returned by Load when stored data cannot be decoded
	ErrCorrupt = errors.New("cart: stored cart is corrupt")
)

// Persister stores cart snapshots
type Persister interface {
	Load(ctx context.Context, key string) (Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error
	Delete(ctx context.Context, key string) error

	// Name identifies the backend in logs and metrics
	Name() string
}

// StorageKey returns the key for a session's cart
func StorageKey(base, session string) string {
	if base == "" {
		base = DefaultStorageKey
	}
	if session == "" {
		return base
	}
	return base + ":" + session
}

// encode serializes a snapshot
func encode(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cart: %w", err)
	}
	return data, nil
}

// decode parses stored bytes, recomputing aggregates from the items
func decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	snap.Totals = computeTotals(snap.Items)
	return snap, nil
}

// MemoryPersister keeps encoded snapshots in memory
type MemoryPersister struct {
	mu   sync.Mutex
	data map[string][]byte

	// FailSaves makes Save return an error; used in tests
	FailSaves bool
}

// NewMemoryPersister creates an empty in-memory persister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string][]byte)}
}

func (m *MemoryPersister) Name() string { return "memory" }

func (m *MemoryPersister) Load(ctx context.Context, key string) (Snapshot, error) {
	m.mu.Lock()
	data, ok := m.data[key]
	m.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return decode(data)
}

func (m *MemoryPersister) Save(ctx context.Context, key string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves {
		return errors.New("memory persister: save failed")
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}
	m.data[key] = data
	return nil
}

func (m *MemoryPersister) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Raw returns the stored bytes for key
func (m *MemoryPersister) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	return data, ok
}

// FilePersister stores one JSON file per key under a directory. Writes go
// to a temp file that is renamed over the target.
type FilePersister struct {
	dir string
}

// NewFilePersister creates dir if needed
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cart dir: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (f *FilePersister) Name() string { return "file" }

func (f *FilePersister) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

func (f *FilePersister) Load(ctx context.Context, key string) (Snapshot, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("failed to read cart: %w", err)
	}
	return decode(data)
}

func (f *FilePersister) Save(ctx context.Context, key string, snap Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".cart-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cart: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cart file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cart file: %w", err)
	}
	return nil
}

func (f *FilePersister) Delete(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
