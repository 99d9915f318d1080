package keystore

import "sync"

// TabStorage is a key-value surface scoped to the browsing tab, guaranteed
// cleared when the tab closes. The keystore is its only writer; no other
// component reads or writes it directly.
type TabStorage interface {
	Set(key, value string)
	Get(key string) (string, bool)
	Remove(key string)
	Keys() []string
}

// MemoryStorage is a volatile in-process TabStorage. It backs the key store
// in embedded use and stands in for real tab storage in tests.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ TabStorage = (*MemoryStorage)(nil)

// NewMemoryStorage creates a new empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStorage) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
