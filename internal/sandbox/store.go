package sandbox

import "sync"

// Store is the named result store: a process-wide map of string keys to live
// values. It is the one deliberately shared mutable resource in the design.
// Entries are created or overwritten by sandboxed code under whatever key the
// code chooses and are never expired implicitly; callers evict manually via
// Delete or Clear. Key-collision avoidance (e.g. using call ids as keys) is
// the caller's responsibility.
type Store struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]any)}
}

var defaultStore = NewStore()

// Results returns the process-wide named result store shared by every
// executor that does not override it.
func Results() *Store {
	return defaultStore
}

// Set stores a value under key, overwriting any previous entry.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// Get returns the value for key, or nil if absent.
func (s *Store) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key]
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Delete removes key. Removing an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]any)
}

// Keys returns the current set of keys in no particular order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
