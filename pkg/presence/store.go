package presence

import (
	"sync"
	"time"
)

// Store combines the Registry and the Index behind one mutex. Every
// read-modify-write sequence that touches both (a join registers and binds,
// a sweep reads and deletes) runs under the same lock, so a concurrent
// Snapshot or Resolve never observes a half-applied update. Callers must
// not hold the lock across transport sends; all methods return copies.
type Store struct {
	mu       sync.RWMutex
	registry *Registry
	index    *Index
	grace    time.Duration
}

// NewStore creates a store with the given offline grace period
func NewStore(grace time.Duration) *Store {
	return &Store{
		registry: NewRegistry(),
		index:    NewIndex(),
		grace:    grace,
	}
}

// Join registers a connection and binds its username in one atomic step
func (s *Store) Join(connID, username, profileColor string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.registry.Add(connID, username, profileColor, now)
	if err != nil {
		return Record{}, err
	}
	s.index.Bind(username, connID)
	return rec, nil
}

// Get returns the record for a connection, if any
func (s *Store) Get(connID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Get(connID)
}

// MarkOffline flips a connection's record to offline with LastSeen=now
func (s *Store) MarkOffline(connID string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.MarkOffline(connID, now)
}

// Resolve returns the connection id currently bound to a username
func (s *Store) Resolve(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Resolve(username)
}

// Snapshot returns all held records keyed by connection id
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Snapshot()
}

// PurgeExpired removes offline records older than the grace period and
// returns them. Index entries are left in place; see Index.
func (s *Store) PurgeExpired(now time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.PurgeExpired(now, s.grace)
}

// GracePeriod returns the configured offline retention interval
func (s *Store) GracePeriod() time.Duration {
	return s.grace
}

// Len returns the number of held records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Len()
}
