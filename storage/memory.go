package storage

import (
	"context"
	"sync"

	"kanban-sync/domain"
)

// Memory keeps snapshots in process. It is the default backend and the one
// used by tests.
type Memory struct {
	mu     sync.RWMutex
	boards map[string]domain.Snapshot
}

func NewMemory() *Memory {
	return &Memory{boards: make(map[string]domain.Snapshot)}
}

func (m *Memory) Load(ctx context.Context, boardID string) (domain.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.boards[boardID]
	if !ok {
		return domain.Snapshot{}, false, nil
	}
	return domain.Snapshot{Version: s.Version, Board: s.Board.Clone()}, true, nil
}

func (m *Memory) Save(ctx context.Context, boardID string, s domain.Snapshot) error {
	m.mu.Lock()
	m.boards[boardID] = domain.Snapshot{Version: s.Version, Board: s.Board.Clone()}
	m.mu.Unlock()
	return nil
}
