package memory

import (
	"context"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// PresenceStore is an in-memory presence tracker with the same staleness
// semantics as the redis implementation.
type PresenceStore struct {
	mu        sync.RWMutex
	records   map[string]domain.Presence
	staleness time.Duration
	clock     func() time.Time
}

func NewPresenceStore(staleness time.Duration) *PresenceStore {
	return NewPresenceStoreWithClock(staleness, time.Now)
}

// NewPresenceStoreWithClock is test-only for deterministic staleness checks.
func NewPresenceStoreWithClock(staleness time.Duration, clock func() time.Time) *PresenceStore {
	return &PresenceStore{
		records:   make(map[string]domain.Presence),
		staleness: staleness,
		clock:     clock,
	}
}

func (p *PresenceStore) SetOnline(_ context.Context, userID, displayName string, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[userID] = domain.Presence{
		UserID:      userID,
		DisplayName: displayName,
		Online:      online,
		LastSeen:    p.clock(),
	}
	return nil
}

func (p *PresenceStore) Heartbeat(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	if !ok {
		return domain.ErrPresenceNotFound
	}
	rec.LastSeen = p.clock()
	p.records[userID] = rec
	return nil
}

func (p *PresenceStore) Get(_ context.Context, userID string) (domain.Presence, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[userID]
	if !ok {
		return domain.Presence{}, domain.ErrPresenceNotFound
	}
	return rec, nil
}

func (p *PresenceStore) ListOnline(_ context.Context) ([]domain.Presence, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cutoff := p.clock().Add(-p.staleness)

	online := make([]domain.Presence, 0, len(p.records))
	for _, rec := range p.records {
		if rec.Online && rec.LastSeen.After(cutoff) {
			online = append(online, rec)
		}
	}
	return online, nil
}
