package client

import (
	"sync"

	"kanban-sync/domain"
)

// SnapshotStore holds the newest canonical snapshot seen from the
// coordinator, whether it arrived as a reply or as an UPDATE push.
type SnapshotStore struct {
	mu     sync.Mutex
	latest domain.Snapshot
	have   bool
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Record keeps s unless an older version than the current one. It reports
// whether s became the latest.
func (s *SnapshotStore) Record(snap domain.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.have && snap.Version < s.latest.Version {
		return false
	}
	s.latest = snap
	s.have = true
	return true
}

// Reset overwrites unconditionally. A coordinator restarted on a fresh
// store may legitimately report a lower version after reconnect.
func (s *SnapshotStore) Reset(snap domain.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.have = true
	s.mu.Unlock()
}

func (s *SnapshotStore) Latest() (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.have
}
