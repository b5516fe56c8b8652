package result

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-battle-service/internal/battle"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

const maxConcurrentWrites = 8

// ScoreStore receives the persistent per-player outcome of a battle.
type ScoreStore interface {
	ApplyResult(ctx context.Context, userID string, points int, won bool) error
}

// AchievementStore records unlocked achievements. Unlock must be idempotent
// per (user, achievement, session).
type AchievementStore interface {
	Unlock(ctx context.Context, userID, achievement, sessionID string) error
}

// Finalizer converts an ended session into a ranking and hands the outcome to
// the external score and achievement stores. Finalization is idempotent: the
// session's ResultsRecorded flag is CAS-claimed before any external write, so
// a race between a timeout and a manual forfeit cannot double-count.
type Finalizer struct {
	sessions     store.SessionStore
	scores       ScoreStore
	achievements AchievementStore
	log          *zap.Logger
}

func NewFinalizer(sessions store.SessionStore, scores ScoreStore, achievements AchievementStore, log *zap.Logger) *Finalizer {
	return &Finalizer{sessions: sessions, scores: scores, achievements: achievements, log: log}
}

// Finalize ranks the players of an ended session and persists the outcome.
// On a lost claim it returns the ranking computed from the stored snapshot
// without repeating any external write.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) (domain.BattleResult, error) {
	s, err := f.sessions.Update(ctx, sessionID, battle.ClaimResults())
	if errors.Is(err, domain.ErrConflict) {
		// Already finalized; recompute the (identical) ranking for the caller.
		snapshot, getErr := f.sessions.Get(ctx, sessionID)
		if getErr != nil {
			return domain.BattleResult{}, getErr
		}
		return Rank(snapshot), nil
	}
	if err != nil {
		return domain.BattleResult{}, err
	}

	res := Rank(s)
	f.persist(ctx, s, res)
	return res, nil
}

// persist writes scores and achievements. External failures are logged, not
// propagated: the session record already holds the authoritative outcome and
// must not be blocked by collaborator errors.
func (f *Finalizer) persist(ctx context.Context, s domain.Session, res domain.BattleResult) {
	var eg errgroup.Group
	eg.SetLimit(maxConcurrentWrites)

	for _, r := range res.Rankings {
		r := r
		eg.Go(func() error {
			if err := f.scores.ApplyResult(ctx, r.UserID, r.Score, r.Winner); err != nil {
				f.log.Warn("apply result",
					zap.String("session", s.ID), zap.String("user", r.UserID), zap.Error(err))
			}
			if r.Winner {
				if err := f.achievements.Unlock(ctx, r.UserID, domain.AchievementBattleWinner, s.ID); err != nil {
					f.log.Warn("unlock achievement", zap.String("user", r.UserID), zap.Error(err))
				}
			}
			if r.Score == len(s.Questions) && len(s.Questions) > 0 {
				if err := f.achievements.Unlock(ctx, r.UserID, domain.AchievementPerfectScore, s.ID); err != nil {
					f.log.Warn("unlock achievement", zap.String("user", r.UserID), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// Rank orders players by score descending; ties keep roster insertion order,
// so the first-joined player ranks higher on equal scores.
func Rank(s domain.Session) domain.BattleResult {
	rankings := make([]domain.PlayerResult, 0, len(s.Players))
	for _, p := range s.Players {
		rankings = append(rankings, domain.PlayerResult{UserID: p, Score: s.Scores[p]})
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score > rankings[j].Score
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
		rankings[i].Winner = i == 0
	}
	return domain.BattleResult{
		SessionID: s.ID,
		Rankings:  rankings,
		EndedAt:   s.EndedAt,
	}
}
