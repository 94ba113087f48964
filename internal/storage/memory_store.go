package storage

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value  string
	expiry time.Time
}

// memoryStore keeps values for the lifetime of the process. It backs the
// session-scoped token storage.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryStore(opts Options) *memoryStore {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     opts.TokenTTL,
		now:     time.Now,
	}
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) GetItem(key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if expired(entry.expiry, m.now()) {
		m.mu.Lock()
		if cur, still := m.entries[key]; still && cur == entry {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *memoryStore) SetItem(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiry: expiryFor(m.now(), m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) RemoveItem(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
