package session

import (
	"sync"
)

// Store holds the most recently published Entry batch, or the terminal
// error once the monitor has failed. Readers always get copies.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	err     error
}

func NewStore() *Store {
	return &Store{}
}

// Replace installs a freshly published batch as the authoritative state.
func (s *Store) Replace(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries[:0:0], entries...)
}

// Snapshot returns a copy of the current batch.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Get looks up the entry for pid in the current batch.
func (s *Store) Get(pid int32) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.PID == pid {
			return e, true
		}
	}
	return Entry{}, false
}

// State reports the aggregate indicator for the current batch.
func (s *Store) State() IconState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateOf(s.entries)
}

// Fail records the monitor's terminal error. The first error wins; the
// monitor sends it exactly once and never publishes again afterwards.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the terminal error, or nil while the monitor is running.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
