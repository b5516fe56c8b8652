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

const (
	presenceKeyPrefix = "battle:presence:"
	presenceIndexKey  = "battle:presence:index"
)

// PresenceStore keeps per-player heartbeat records in Redis. The staleness
// window is applied on every read: a record whose LastSeen is too old counts
// as offline even if its stored flag says otherwise, which protects against
// ungraceful disconnects that never flipped the flag.
type PresenceStore struct {
	client    *redis.Client
	staleness time.Duration
	clock     func() time.Time
}

func NewPresenceStore(client *redis.Client, staleness time.Duration) *PresenceStore {
	return &PresenceStore{client: client, staleness: staleness, clock: time.Now}
}

// NewPresenceStoreWithClock is test-only for deterministic staleness checks.
func NewPresenceStoreWithClock(client *redis.Client, staleness time.Duration, clock func() time.Time) *PresenceStore {
	return &PresenceStore{client: client, staleness: staleness, clock: clock}
}

// SetOnline flips a player's availability and refreshes the heartbeat.
func (p *PresenceStore) SetOnline(ctx context.Context, userID, displayName string, online bool) error {
	rec := domain.Presence{
		UserID:      userID,
		DisplayName: displayName,
		Online:      online,
		LastSeen:    p.clock(),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	pipe := p.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, data, 0)
	pipe.SAdd(ctx, presenceIndexKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store presence: %w", err)
	}
	return nil
}

// Heartbeat refreshes LastSeen without changing the display name or flag.
func (p *PresenceStore) Heartbeat(ctx context.Context, userID string) error {
	rec, err := p.Get(ctx, userID)
	if err != nil {
		return err
	}
	return p.SetOnline(ctx, userID, rec.DisplayName, rec.Online)
}

// Get returns the raw presence record; freshness is the caller's concern.
func (p *PresenceStore) Get(ctx context.Context, userID string) (domain.Presence, error) {
	data, err := p.client.Get(ctx, presenceKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Presence{}, domain.ErrPresenceNotFound
	}
	if err != nil {
		return domain.Presence{}, fmt.Errorf("load presence: %w", err)
	}
	var rec domain.Presence
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Presence{}, fmt.Errorf("unmarshal presence: %w", err)
	}
	return rec, nil
}

// ListOnline returns players whose flag is set and whose heartbeat is within
// the staleness window.
func (p *PresenceStore) ListOnline(ctx context.Context) ([]domain.Presence, error) {
	ids, err := p.client.SMembers(ctx, presenceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence index: %w", err)
	}
	cutoff := p.clock().Add(-p.staleness)

	online := make([]domain.Presence, 0, len(ids))
	for _, id := range ids {
		rec, err := p.Get(ctx, id)
		if err != nil {
			continue
		}
		if rec.Online && rec.LastSeen.After(cutoff) {
			online = append(online, rec)
		}
	}
	return online, nil
}
