package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
	redisinfra "quiz-battle-service/internal/infra/redis"
)

func TestPresenceSetOnlineAndGet(t *testing.T) {
	ctx := context.Background()
	p := redisinfra.NewPresenceStore(newClient(t), 300*time.Second)

	if err := p.SetOnline(ctx, "u1", "Alice", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	rec, err := p.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Online || rec.DisplayName != "Alice" || rec.LastSeen.IsZero() {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := p.Get(ctx, "ghost"); !errors.Is(err, domain.ErrPresenceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPresenceStalenessWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	p := redisinfra.NewPresenceStoreWithClock(newClient(t), 300*time.Second, clock)

	_ = p.SetOnline(ctx, "fresh", "Fresh", true)
	_ = p.SetOnline(ctx, "offline", "Off", false)

	// A heartbeat exactly at the boundary is stale: 300s elapsed is too old.
	now = now.Add(301 * time.Second)
	_ = p.SetOnline(ctx, "recent", "Recent", true)

	online, err := p.ListOnline(ctx)
	if err != nil {
		t.Fatalf("list online: %v", err)
	}
	if len(online) != 1 || online[0].UserID != "recent" {
		t.Fatalf("expected only the recent player, got %+v", online)
	}
}

func TestHeartbeatRefreshesWithoutFlippingState(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	p := redisinfra.NewPresenceStoreWithClock(newClient(t), 300*time.Second, clock)

	_ = p.SetOnline(ctx, "u1", "Alice", true)
	first, _ := p.Get(ctx, "u1")

	now = now.Add(250 * time.Second)
	if err := p.Heartbeat(ctx, "u1"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	refreshed, _ := p.Get(ctx, "u1")
	if !refreshed.LastSeen.After(first.LastSeen) {
		t.Fatal("heartbeat did not refresh LastSeen")
	}
	if !refreshed.Online || refreshed.DisplayName != "Alice" {
		t.Fatalf("heartbeat changed the record: %+v", refreshed)
	}

	// Still within the window after the refresh.
	now = now.Add(250 * time.Second)
	online, _ := p.ListOnline(ctx)
	if len(online) != 1 {
		t.Fatalf("expected refreshed player online, got %+v", online)
	}
}
