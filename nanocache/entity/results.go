package entity

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// resultStore holds search results keyed by canonical search key.
// Implementations are safe for concurrent use.
type resultStore[ID comparable] interface {
	Get(key string) ([]ID, bool)
	Add(key string, ids []ID)
	Purge()
	Len() int
}

func newResultStore[ID comparable](size int) resultStore[ID] {
	if size > 0 {
		c, err := lru.New[string, []ID](size)
		if err == nil {
			return lruResults[ID]{c}
		}
	}
	return &mapResults[ID]{results: make(map[string][]ID)}
}

// lruResults evicts the least recently used result once full
type lruResults[ID comparable] struct {
	*lru.Cache[string, []ID]
}

func (l lruResults[ID]) Add(key string, ids []ID) {
	l.Cache.Add(key, ids)
}

// mapResults keeps every result until the next purge
type mapResults[ID comparable] struct {
	mu      sync.RWMutex
	results map[string][]ID
}

func (m *mapResults[ID]) Get(key string) ([]ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.results[key]
	return ids, ok
}

func (m *mapResults[ID]) Add(key string, ids []ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = ids
}

func (m *mapResults[ID]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.results)
}

func (m *mapResults[ID]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
