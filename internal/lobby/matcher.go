package lobby

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

// QuestionSource supplies the fixed question sequence chosen once at session
// creation.
type QuestionSource interface {
	Fetch(ctx context.Context, category, difficulty string, count int) ([]domain.Question, error)
}

// PresenceStore lists players eligible for matchmaking. Implementations apply
// the staleness rule on read.
type PresenceStore interface {
	ListOnline(ctx context.Context) ([]domain.Presence, error)
}

// Starter is the slice of the battle coordinator the lobby drives.
type Starter interface {
	ScheduleStart(sessionID string, at time.Time)
	StartNow(ctx context.Context, sessionID string) error
}

// Matcher handles open-lobby matchmaking: discovery of online players,
// session creation with a countdown deadline, and roster joins.
type Matcher struct {
	sessions   store.SessionStore
	questions  QuestionSource
	presence   PresenceStore
	starter    Starter
	timings    config.BattleTimings
	category   string
	difficulty string
	log        *zap.Logger
}

func NewMatcher(sessions store.SessionStore, questions QuestionSource, presence PresenceStore, starter Starter, timings config.BattleTimings, category, difficulty string, log *zap.Logger) *Matcher {
	return &Matcher{
		sessions:   sessions,
		questions:  questions,
		presence:   presence,
		starter:    starter,
		timings:    timings,
		category:   category,
		difficulty: difficulty,
		log:        log,
	}
}

// ListOnline returns players currently available for matchmaking.
func (m *Matcher) ListOnline(ctx context.Context) ([]domain.Presence, error) {
	return m.presence.ListOnline(ctx)
}

// CreateOpenSession selects the question sequence, persists a waiting session
// and arms the countdown. The creator is the first roster entry.
func (m *Matcher) CreateOpenSession(ctx context.Context, creatorID string) (domain.Session, error) {
	questions, err := m.questions.Fetch(ctx, m.category, m.difficulty, m.timings.QuestionCount)
	if err != nil {
		return domain.Session{}, fmt.Errorf("fetch questions: %w", err)
	}

	now := time.Now()
	s := domain.Session{
		ID:            uuid.NewString(),
		Status:        domain.StatusWaiting,
		Players:       []string{creatorID},
		MaxPlayers:    m.timings.OpenMaxPlayers,
		Questions:     questions,
		Scores:        map[string]int{creatorID: 0},
		CreatedBy:     creatorID,
		CreatedAt:     now,
		CountdownEnds: now.Add(m.timings.LobbyCountdown),
	}
	if err := m.sessions.Create(ctx, &s); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}

	m.starter.ScheduleStart(s.ID, s.CountdownEnds)
	m.log.Info("open session created",
		zap.String("session", s.ID), zap.String("creator", creatorID))
	return s, nil
}

// Join adds userID to a waiting session. Re-joining is a no-op. A join that
// completes the roster starts the battle immediately.
func (m *Matcher) Join(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	s, err := m.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.Status != domain.StatusWaiting {
			return domain.ErrInvalidState
		}
		if s.HasPlayer(userID) {
			return nil
		}
		if len(s.Players) >= s.MaxPlayers {
			return domain.ErrSessionFull
		}
		s.Players = append(s.Players, userID)
		s.Scores[userID] = 0
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	if len(s.Players) == s.MaxPlayers {
		if err := m.starter.StartNow(ctx, sessionID); err != nil {
			// A concurrent countdown start is fine; the roster is in.
			m.log.Debug("start on full roster", zap.String("session", sessionID), zap.Error(err))
		}
		if started, err := m.sessions.Get(ctx, sessionID); err == nil {
			return started, nil
		}
	}
	return s, nil
}
