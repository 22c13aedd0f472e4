package credentials

import "sync"

// Store maps session identifiers to the API key they were initialized with.
// The zero value is not usable; construct with NewStore.
type Store struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{keys: make(map[string]string)}
}

// Put records apiKey for sessionID. Empty ids or keys are ignored.
func (s *Store) Put(sessionID, apiKey string) {
	if sessionID == "" || apiKey == "" {
		return
	}
	s.mu.Lock()
	s.keys[sessionID] = apiKey
	s.mu.Unlock()
}

// Get returns the key stored for sessionID.
func (s *Store) Get(sessionID string) (string, bool) {
	if sessionID == "" {
		return "", false
	}
	s.mu.RLock()
	key, ok := s.keys[sessionID]
	s.mu.RUnlock()
	return key, ok
}

// Remove forgets sessionID. Removing an unknown id is a no-op.
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.keys, sessionID)
	s.mu.Unlock()
}

// Len reports how many sessions currently hold a key.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
