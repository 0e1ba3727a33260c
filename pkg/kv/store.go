// Package kv provides a small thread-safe memoizing map.
package kv

import "sync"

// Store is a thread-safe map whose values are built lazily and at most once
// per key.
type Store[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// New creates an empty store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		data: make(map[K]V),
	}
}

// Get retrieves a value by key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

// GetOrCreate returns the value for key, building it with create on first
// use. A failed create leaves the key unset so a later call can retry.
func (s *Store[K, V]) GetOrCreate(key K, create func(K) (V, error)) (V, error) {
	if val, ok := s.Get(key); ok {
		return val, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have won the race between the two locks.
	if val, ok := s.data[key]; ok {
		return val, nil
	}

	val, err := create(key)
	if err != nil {
		var zero V
		return zero, err
	}
	s.data[key] = val
	return val, nil
}

// Range calls fn for every entry until fn returns false. The store is locked
// for reading while fn runs, so fn must not modify it.
func (s *Store[K, V]) Range(fn func(K, V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		if !fn(k, v) {
			return
		}
	}
}

// Len returns the number of cached values.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
