package state

import "sync"

// syncMap is a map that is safe for concurrent usage. Writes go through
// LoadAndStore so read-modify-write updates stay atomic.
type syncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func newSyncMap[K comparable, V any]() *syncMap[K, V] {
	return &syncMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *syncMap[K, V]) Load(key K) (value V, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok = s.m[key]
	return
}

// LoadAndStore retrieves the value for a key, applies f to it, and stores
// the result. The whole operation is atomic.
func (s *syncMap[K, V]) LoadAndStore(key K, f func(value V, ok bool) V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	s.m[key] = f(value, ok)
}

func (s *syncMap[K, V]) RRange(f func(key K, value V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.m {
		if !f(k, v) {
			break
		}
	}
}
