package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// MemoryStore is an in-process Store. With MaxEntries > 0 the oldest entry is
// evicted once the bound is reached; with TTL > 0 entries expire lazily on read.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	order      []string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore constructs a MemoryStore. Zero values mean no expiry and no bound.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the stored value, or nil on a miss.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.ttl > 0 && m.now().Sub(e.storedAt) >= m.ttl {
		m.mu.Lock()
		m.remove(key)
		m.mu.Unlock()
		return nil, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value. Overwriting a key does not change its eviction position.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if value == nil {
		return nil
	}
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		if m.maxEntries > 0 && len(m.order) >= m.maxEntries {
			m.remove(m.order[0])
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = memoryEntry{value: v, storedAt: m.now()}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(key)
	return nil
}

// Len reports the number of live entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Reset drops every entry.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	m.order = nil
}

// remove must be called with mu held for writing.
func (m *MemoryStore) remove(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
