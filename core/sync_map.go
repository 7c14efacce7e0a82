package core

import "sync"

// SyncMap is a map that is safe for concurrent usage. Keys whose update
// reports nothing left to keep are removed, so the map only holds live entries.
type SyncMap[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{m: make(map[K]V)}
}

func (s *SyncMap[K, V]) Load(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	return value, ok
}

func (s *SyncMap[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Update applies f to the value under key and stores the result, or deletes
// key when f returns keep == false. The whole operation is atomic.
func (s *SyncMap[K, V]) Update(key K, f func(value V, ok bool) (next V, keep bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	next, keep := f(value, ok)
	if !keep {
		delete(s.m, key)
		return
	}
	s.m[key] = next
}

// Drain hands every entry to f and empties the map.
func (s *SyncMap[K, V]) Drain(f func(key K, value V)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.m {
		f(k, v)
	}
	clear(s.m)
}
