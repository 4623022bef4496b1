package chat

import "sync"

// SavedSet remembers which completed replies were already persisted during the lifetime of the
// process. It is shared by every Session so that a completion delivered twice is saved once.
// Nothing survives a restart.
type SavedSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewSavedSet creates an empty SavedSet.
func NewSavedSet() *SavedSet {
	return &SavedSet{keys: make(map[string]struct{})}
}

// Add records key and reports whether it was new.
func (s *SavedSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Len returns the number of recorded keys.
func (s *SavedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
