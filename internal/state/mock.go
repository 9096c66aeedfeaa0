// internal/state/mock.go
package state

import (
	"database/sql"
	"sync"
	"time"
)

// Mock is a test double for Manager.
type Mock struct {
	mu         sync.Mutex
	queueState *QueueState
	saved      []QueueState
	positions  []time.Duration
	saveErr    error
	closed     bool
}

// NewMock creates a new mock state manager for testing.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) DB() *sql.DB { return nil }

func (m *Mock) SaveQueue(st QueueState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, st)
	m.queueState = &st
	return nil
}

func (m *Mock) GetQueue() (*QueueState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueState, nil
}

func (m *Mock) SavePosition(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, pos)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helpers

func (m *Mock) SetQueue(st *QueueState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueState = st
}

func (m *Mock) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *Mock) SavedQueues() []QueueState {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make([]QueueState, len(m.saved))
	copy(saved, m.saved)
	return saved
}

func (m *Mock) SavedPositions() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	positions := make([]time.Duration, len(m.positions))
	copy(positions, m.positions)
	return positions
}

func (m *Mock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
