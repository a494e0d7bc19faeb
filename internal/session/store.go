package session

import (
	"sync"

	"github.com/classpoll/livepoll/internal/models"
)

// Store holds the single authoritative SessionState snapshot for this
// replica. Replace is the sole mutation path; because states are
// copy-on-write values, a snapshot returned by Read stays consistent no
// matter how many Replace calls happen afterwards.
type Store struct {
	mu    sync.RWMutex
	state models.SessionState
}

// NewStore creates a store holding an empty session.
func NewStore() *Store {
	return &Store{state: models.NewSessionState()}
}

// Read returns the current snapshot. The value is safe to retain and compare.
func (s *Store) Read() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Replace installs a new snapshot, atomically with respect to concurrent
// reads.
func (s *Store) Replace(next models.SessionState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}
