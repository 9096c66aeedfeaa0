package engine

import (
	"context"
	"sync"
	"time"
)

// Mock is a test double for Engine.
type Mock struct {
	mu sync.Mutex

	state    State
	position time.Duration
	duration time.Duration

	loadCalls []Source
	stopCalls int
	playCalls int
	seekCalls []time.Duration

	loadErrs []error        // consumed in order by Load; nil entry means success
	stopGate chan struct{}  // when set, Stop blocks until the gate is closed

	events chan Event
	closed bool
}

// NewMock creates a new mock engine for testing.
func NewMock() *Mock {
	return &Mock{
		state:  Idle,
		events: make(chan Event, 16),
	}
}

func (m *Mock) Load(_ context.Context, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = append(m.loadCalls, src)
	if len(m.loadErrs) > 0 {
		err := m.loadErrs[0]
		m.loadErrs = m.loadErrs[1:]
		if err != nil {
			m.state = Idle
			return err
		}
	}
	m.state = Paused
	m.position = 0
	return nil
}

func (m *Mock) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopCalls++
	gate := m.stopGate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.state = Idle
	m.position = 0
	m.mu.Unlock()
	return nil
}

func (m *Mock) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls++
	if m.state == Paused {
		m.state = Playing
	}
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Playing {
		m.state = Paused
	}
}

func (m *Mock) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Paused {
		m.state = Playing
	}
}

func (m *Mock) Seek(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	m.position = pos
}

func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Buffered() time.Duration {
	return m.Duration()
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

// Test helpers

func (m *Mock) SetState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Mock) SetPosition(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = d
}

func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// FailNextLoads queues errors consumed by subsequent Load calls.
// A nil entry makes that call succeed.
func (m *Mock) FailNextLoads(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErrs = append(m.loadErrs, errs...)
}

// SetStopGate makes Stop block until the gate channel is closed.
func (m *Mock) SetStopGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopGate = gate
}

func (m *Mock) LoadCalls() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]Source, len(m.loadCalls))
	copy(calls, m.loadCalls)
	return calls
}

func (m *Mock) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

func (m *Mock) PlayCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playCalls
}

func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]time.Duration, len(m.seekCalls))
	copy(calls, m.seekCalls)
	return calls
}

// SimulateCompleted emits a natural-completion event.
func (m *Mock) SimulateCompleted() {
	m.mu.Lock()
	m.state = Idle
	m.mu.Unlock()
	m.emit(Event{Type: EventCompleted, State: Idle})
}

// SimulateError emits an asynchronous playback error.
func (m *Mock) SimulateError(err error) {
	m.emit(Event{Type: EventError, State: m.State(), Err: err})
}

func (m *Mock) emit(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.events <- e:
	default:
	}
}

// Verify Mock implements Engine at compile time.
var _ Engine = (*Mock)(nil)
