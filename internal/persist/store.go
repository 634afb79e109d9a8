// Package persist provides crash-safe snapshotting of session state against
// a durable key-value store, and validated rehydration at boot.
package persist

import (
	"sync"
)

// Store is a durable key-value record store. One session writes one record;
// there is a single writer per key, so no cross-process locking is needed.
type Store interface {
	// Load returns the stored record and whether it exists.
	Load(key string) ([]byte, bool, error)
	// Save overwrites the record atomically; a reader never observes a
	// partial write.
	Save(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Load(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStore) Save(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.records[key] = v
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
