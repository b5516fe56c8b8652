package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// ScoreStore persists cumulative player statistics and unlocked achievements.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// ApplyResult accrues one battle outcome into the player's stats row.
func (s *ScoreStore) ApplyResult(ctx context.Context, userID string, points int, won bool) error {
	wins := 0
	if won {
		wins = 1
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO player_stats (user_id, points, wins, played)
VALUES ($1, $2, $3, 1)
ON CONFLICT (user_id) DO UPDATE SET
	points = player_stats.points + EXCLUDED.points,
	wins   = player_stats.wins + EXCLUDED.wins,
	played = player_stats.played + 1`,
		userID, points, wins)
	if err != nil {
		return fmt.Errorf("apply result: %w", err)
	}
	return nil
}

// Unlock records an achievement once; replays hit the conflict target and do
// nothing, which is what makes re-finalization safe.
func (s *ScoreStore) Unlock(ctx context.Context, userID, achievement, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO achievements (user_id, name, session_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, name, session_id) DO NOTHING`,
		userID, achievement, sessionID)
	if err != nil {
		return fmt.Errorf("unlock achievement: %w", err)
	}
	return nil
}

// Leaderboard returns players ordered by cumulative points descending.
func (s *ScoreStore) Leaderboard(ctx context.Context, limit int) ([]domain.PlayerStats, error) {
	rows, err := s.pool.Query(ctx, `
SELECT user_id, points, wins, played
FROM player_stats
ORDER BY points DESC, user_id
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()
	return collectStats(rows)
}

func collectStats(rows pgx.Rows) ([]domain.PlayerStats, error) {
	var out []domain.PlayerStats
	for rows.Next() {
		var st domain.PlayerStats
		if err := rows.Scan(&st.UserID, &st.Points, &st.Wins, &st.Played); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
