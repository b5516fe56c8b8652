package redis_test

import (
	"context"
	"testing"

	redisinfra "quiz-battle-service/internal/infra/redis"
)

func TestLeaderboardTopOrdersByPoints(t *testing.T) {
	ctx := context.Background()
	lb := redisinfra.NewLeaderboard(newClient(t))

	_ = lb.Add(ctx, "a", 3)
	_ = lb.Add(ctx, "b", 7)
	_ = lb.Add(ctx, "c", 1)
	_ = lb.Add(ctx, "a", 2) // accrues to 5

	top, err := lb.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(top))
	}
	if top[0].UserID != "b" || top[0].Points != 7 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].UserID != "a" || top[1].Points != 5 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
}

func TestLeaderboardTopOnEmptySet(t *testing.T) {
	lb := redisinfra.NewLeaderboard(newClient(t))
	top, err := lb.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("expected empty board, got %+v", top)
	}
}
