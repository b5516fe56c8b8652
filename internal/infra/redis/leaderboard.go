package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

const leaderboardKey = "battle:leaderboard"

// Leaderboard mirrors cumulative battle points into a Redis sorted set for
// fast top-N queries. The postgres score store stays authoritative; this is a
// projection refreshed on every finalization.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// Add accrues points for a player.
func (l *Leaderboard) Add(ctx context.Context, userID string, points int) error {
	if err := l.client.ZIncrBy(ctx, leaderboardKey, float64(points), userID).Err(); err != nil {
		return fmt.Errorf("leaderboard incr: %w", err)
	}
	return nil
}

// Top returns up to limit players ordered by points descending.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.PlayerStats, error) {
	res, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard range: %w", err)
	}
	stats := make([]domain.PlayerStats, 0, len(res))
	for _, z := range res {
		stats = append(stats, domain.PlayerStats{
			UserID: z.Member.(string),
			Points: int(z.Score),
		})
	}
	return stats, nil
}
