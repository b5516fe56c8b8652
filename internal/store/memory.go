package store

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// Memory is an in-process SessionStore used by tests and redis-less runs.
// Updates are serialized per store, so the CAS loop never conflicts here;
// precondition failures inside the UpdateFn still propagate.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	state       domain.Session
	subscribers map[chan domain.Session]struct{}
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*memorySession)}
}

func (m *Memory) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Version = 1
	m.sessions[s.ID] = &memorySession{
		state:       s.Clone(),
		subscribers: make(map[chan domain.Session]struct{}),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return ms.state.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, fn UpdateFn) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	next := ms.state.Clone()
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	next.Version = ms.state.Version + 1
	ms.state = next

	snapshot := next.Clone()
	for ch := range ms.subscribers {
		deliver(ch, snapshot)
	}
	return snapshot, nil
}

func (m *Memory) Watch(_ context.Context, id string) (<-chan domain.Session, func(), error) {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, nil, domain.ErrSessionNotFound
	}
	ch := make(chan domain.Session, 8)
	ms.subscribers[ch] = struct{}{}
	// Buffer the initial snapshot while still holding the lock so no
	// concurrent update can be delivered ahead of it.
	ch <- ms.state.Clone()
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := ms.subscribers[ch]; ok {
			delete(ms.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel, nil
}

// deliver pushes a snapshot without blocking on slow consumers: a stale
// snapshot is dropped to make room, since every delivery is a full state.
func deliver(ch chan domain.Session, s domain.Session) {
	select {
	case ch <- s:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
