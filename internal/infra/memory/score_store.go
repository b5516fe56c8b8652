package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-battle-service/internal/domain"
)

// ScoreStore accumulates per-player results in memory. The achievement set
// gives the same idempotency guarantee as the postgres ON CONFLICT insert.
type ScoreStore struct {
	mu           sync.RWMutex
	stats        map[string]*domain.PlayerStats
	achievements map[achievementKey]struct{}
}

type achievementKey struct {
	userID      string
	achievement string
	sessionID   string
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		stats:        make(map[string]*domain.PlayerStats),
		achievements: make(map[achievementKey]struct{}),
	}
}

func (s *ScoreStore) ApplyResult(_ context.Context, userID string, points int, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok {
		st = &domain.PlayerStats{UserID: userID}
		s.stats[userID] = st
	}
	st.Points += points
	st.Played++
	if won {
		st.Wins++
	}
	return nil
}

func (s *ScoreStore) Unlock(_ context.Context, userID, achievement, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.achievements[achievementKey{userID, achievement, sessionID}] = struct{}{}
	return nil
}

// Achievements returns how many distinct achievements a user has unlocked.
func (s *ScoreStore) Achievements(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.achievements {
		if k.userID == userID {
			n++
		}
	}
	return n
}

// Stats returns the accumulated row for a user.
func (s *ScoreStore) Stats(userID string) domain.PlayerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stats[userID]; ok {
		return *st
	}
	return domain.PlayerStats{UserID: userID}
}

// Leaderboard returns users ordered by points descending.
func (s *ScoreStore) Leaderboard(_ context.Context, limit int) ([]domain.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PlayerStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
