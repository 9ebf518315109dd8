package license

import "sync"

// StateStore holds the last known entitlement of one session.
//
// Every update carries a sequence number; an update older than the newest
// applied one is discarded so a slow refresh cannot overwrite a fresher one.
type StateStore struct {
	mu  sync.RWMutex
	ent Entitlement
	has bool
	seq uint64
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// Get returns the last applied entitlement and whether there is one.
func (s *StateStore) Get() (Entitlement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ent, s.has
}

// Set applies ent unless seq is lower than the highest applied sequence.
// It reports whether the update was applied.
func (s *StateStore) Set(seq uint64, ent Entitlement) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.seq {
		return false
	}
	s.ent, s.has, s.seq = ent, true, seq
	return true
}

// Clear drops the cached entitlement immediately. The sequence high-water
// mark is kept so stale updates stay rejected.
func (s *StateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ent, s.has = Entitlement{}, false
}

// Seq returns the highest applied sequence number.
func (s *StateStore) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}
