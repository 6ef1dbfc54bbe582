package cache

import (
	"strings"
	"sync"
)

// Store is the three-method contract the spatial cache depends on. Backing
// stores are pluggable: in-memory map, badger on disk, memcached. GetItems
// returns one slot per key, nil meaning missing.
type Store interface {
	SetItems(items map[string][]byte) error
	GetItems(keys []string) ([][]byte, error)
	GetAll(prefix string) (map[string][]byte, error)
}

// MemoryStore implements Store with an in-process map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// SetItems stores all items, replacing existing values.
func (m *MemoryStore) SetItems(items map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		cp := make([]byte, len(v))
		copy(cp, v)
		m.data[k] = cp
	}
	return nil
}

// GetItems returns the values for keys in order, nil for missing keys.
func (m *MemoryStore) GetItems(keys []string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			out[i] = v
		}
	}
	return out, nil
}

// GetAll returns every entry whose key starts with prefix.
func (m *MemoryStore) GetAll(prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}
