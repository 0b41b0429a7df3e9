// Package store holds the in-memory pending-verification state: at most
// one outstanding challenge token per handle.
package store

import "sync"

// PendingStore maps a social handle to its currently pending challenge
// token. It is process-wide, volatile state: entries live until they are
// consumed, overwritten by a re-issued challenge, or the process restarts.
// The store never expires entries on its own.
type PendingStore struct {
	mu      sync.RWMutex
	pending map[string]string
}

// New creates an empty PendingStore.
func New() *PendingStore {
	return &PendingStore{pending: make(map[string]string)}
}

// Put records token as the pending challenge for handle, overwriting any
// earlier entry. The earlier token becomes permanently unsatisfiable.
func (s *PendingStore) Put(handle, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[handle] = token
}

// Get returns the pending token for handle. The second return value is
// false when no challenge is outstanding.
func (s *PendingStore) Get(handle string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.pending[handle]
	return token, ok
}

// Remove deletes the entry for handle; no-op if absent.
func (s *PendingStore) Remove(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, handle)
}

// Consume removes the entry for handle only if it still holds exactly
// token, and reports whether it was removed. A check that validated an
// older token therefore cannot delete a token re-issued concurrently.
func (s *PendingStore) Consume(handle, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pending[handle]
	if !ok || current != token {
		return false
	}
	delete(s.pending, handle)
	return true
}

// Len returns the number of handles with a challenge outstanding.
func (s *PendingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}
