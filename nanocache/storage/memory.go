package storage

import (
	"context"
)

// MemoryStore keeps blobs in a map. It is the default backend and the one
// used by tests.
type MemoryStore struct {
	lockManager *LockManager
	data        map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lockManager: NewLockManager(),
		data:        make(map[string][]byte),
	}
}

// Get implements KV.Get
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	s.lockManager.Do(ReadOperation, func() {
		var stored []byte
		stored, ok = s.data[key]
		if ok {
			value = append([]byte(nil), stored...)
		}
	})
	return value, ok, nil
}

// Set implements KV.Set
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.lockManager.Do(WriteOperation, func() {
		// copy to prevent external modifications
		s.data[key] = append([]byte(nil), value...)
	})
	return nil
}

// Delete implements KV.Delete
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lockManager.Do(WriteOperation, func() {
		delete(s.data, key)
	})
	return nil
}

// Close implements KV.Close
func (s *MemoryStore) Close() error {
	return nil
}

// Keys returns the stored keys, for tests
func (s *MemoryStore) Keys() []string {
	return With(s.lockManager, ReadOperation, func() []string {
		keys := make([]string, 0, len(s.data))
		for k := range s.data {
			keys = append(keys, k)
		}
		return keys
	})
}
