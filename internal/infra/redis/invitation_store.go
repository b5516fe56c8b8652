package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

// InvitationStore keeps invitation records as JSON values with the same
// WATCH/MULTI optimistic update discipline as the session store.
type InvitationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInvitationStore(client *redis.Client, ttl time.Duration) *InvitationStore {
	return &InvitationStore{client: client, ttl: ttl}
}

func (s *InvitationStore) Create(ctx context.Context, inv *domain.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invitation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(inv.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store invitation: %w", err)
	}
	return nil
}

func (s *InvitationStore) Get(ctx context.Context, id string) (domain.Invitation, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("load invitation: %w", err)
	}
	var inv domain.Invitation
	if err := json.Unmarshal(data, &inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("unmarshal invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) Update(ctx context.Context, id string, fn func(inv *domain.Invitation) error) (domain.Invitation, error) {
	key := s.key(id)
	var committed domain.Invitation

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrInvitationNotFound
			}
			if err != nil {
				return err
			}
			var inv domain.Invitation
			if err := json.Unmarshal(data, &inv); err != nil {
				return err
			}
			if err := fn(&inv); err != nil {
				return err
			}
			next, err := json.Marshal(&inv)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			committed = inv
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Invitation{}, err
		}
		return committed, nil
	}
	return domain.Invitation{}, domain.ErrConflict
}

func (s *InvitationStore) key(id string) string {
	return "battle:invitation:" + id
}
