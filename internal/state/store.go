// Package state mirrors the last known value of home automation entities
// (for example "light.bathroom" -> "on") and fans changes out to subscribers.
// The mirror is never authoritative: it is refreshed by whatever transport
// feeds it.
package state

import "sync"

// Handler receives a state change for point.
type Handler func(point, old, new string)

type subscription struct {
	id uint64
	fn Handler
}

// Store is a thread-safe entity state mirror.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	subs   map[string][]subscription
	nextID uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		values: make(map[string]string),
		subs:   make(map[string][]subscription),
	}
}

// Get returns the value of point and whether it has ever been set.
func (s *Store) Get(point string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[point]
	return v, ok
}

// Set records value for point. Subscribers are called synchronously, outside
// the store lock, only when the value changed. A point seen for the first time
// is reported with an empty old value.
func (s *Store) Set(point, value string) {
	s.mu.Lock()
	old, ok := s.values[point]
	if ok && old == value {
		s.mu.Unlock()
		return
	}
	s.values[point] = value
	subs := append([]subscription(nil), s.subs[point]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(point, old, value)
	}
}

// Subscribe registers fn for changes of point. The returned func removes it.
func (s *Store) Subscribe(point string, fn func(point, old, new string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[point] = append(s.subs[point], subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[point]
		for i, sub := range subs {
			if sub.id == id {
				s.subs[point] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Points returns a copy of every known point and its value.
func (s *Store) Points() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
