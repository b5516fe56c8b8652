package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// InvitationStore is the in-memory counterpart of the redis invitation store.
// Updates are serialized, so precondition checks inside fn decide all races.
type InvitationStore struct {
	mu      sync.RWMutex
	records map[string]domain.Invitation
}

func NewInvitationStore() *InvitationStore {
	return &InvitationStore{records: make(map[string]domain.Invitation)}
}

func (s *InvitationStore) Create(_ context.Context, inv *domain.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[inv.ID] = *inv
	return nil
}

func (s *InvitationStore) Get(_ context.Context, id string) (domain.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.records[id]
	if !ok {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	return inv, nil
}

func (s *InvitationStore) Update(_ context.Context, id string, fn func(inv *domain.Invitation) error) (domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.records[id]
	if !ok {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	if err := fn(&inv); err != nil {
		return domain.Invitation{}, err
	}
	s.records[id] = inv
	return inv, nil
}
