package invite

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

// Store persists invitation records. Update follows the same optimistic
// contract as the session store: fn re-checks preconditions on every attempt.
type Store interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	Get(ctx context.Context, id string) (domain.Invitation, error)
	Update(ctx context.Context, id string, fn func(inv *domain.Invitation) error) (domain.Invitation, error)
}

// QuestionSource supplies the question sequence for the created session.
type QuestionSource interface {
	Fetch(ctx context.Context, category, difficulty string, count int) ([]domain.Question, error)
}

// Starter launches the battle once both parties are committed.
type Starter interface {
	StartNow(ctx context.Context, sessionID string) error
}

// Manager handles direct invite/accept/reject flows between two users,
// independent of open-lobby matchmaking.
type Manager struct {
	invites    Store
	sessions   store.SessionStore
	questions  QuestionSource
	starter    Starter
	timings    config.BattleTimings
	category   string
	difficulty string
	log        *zap.Logger
}

func NewManager(invites Store, sessions store.SessionStore, questions QuestionSource, starter Starter, timings config.BattleTimings, category, difficulty string, log *zap.Logger) *Manager {
	return &Manager{
		invites:    invites,
		sessions:   sessions,
		questions:  questions,
		starter:    starter,
		timings:    timings,
		category:   category,
		difficulty: difficulty,
		log:        log,
	}
}

// Send records a pending invitation from one user to another.
func (m *Manager) Send(ctx context.Context, fromID, toID string) (domain.Invitation, error) {
	inv := domain.Invitation{
		ID:         uuid.NewString(),
		SenderID:   fromID,
		ReceiverID: toID,
		Status:     domain.InvitePending,
		CreatedAt:  time.Now(),
	}
	if err := m.invites.Create(ctx, &inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

// Accept claims a pending invitation and creates exactly one two-player
// session for it. Accepting an invitation that is already accepted or
// rejected fails with domain.ErrInvalidState and has no side effect: the
// claim (Pending -> Accepted) commits before any session exists, so a racing
// second accept loses before it can create anything. Collaborator failures
// leave the invitation pending, so the accept can simply be retried.
func (m *Manager) Accept(ctx context.Context, invitationID string) (domain.Session, error) {
	// Fetch the questions before the claim: a source failure must not
	// strand the invitation in a half-accepted state.
	questions, err := m.questions.Fetch(ctx, m.category, m.difficulty, m.timings.QuestionCount)
	if err != nil {
		return domain.Session{}, fmt.Errorf("fetch questions: %w", err)
	}

	inv, err := m.invites.Update(ctx, invitationID, func(inv *domain.Invitation) error {
		if inv.Status != domain.InvitePending {
			return domain.ErrInvalidState
		}
		inv.Status = domain.InviteAccepted
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	now := time.Now()
	s := domain.Session{
		ID:         uuid.NewString(),
		Status:     domain.StatusWaiting,
		Players:    []string{inv.SenderID, inv.ReceiverID},
		MaxPlayers: 2,
		Questions:  questions,
		Scores:     map[string]int{inv.SenderID: 0, inv.ReceiverID: 0},
		CreatedBy:  inv.SenderID,
		CreatedAt:  now,
	}
	if err := m.sessions.Create(ctx, &s); err != nil {
		m.release(ctx, invitationID)
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}

	if _, err := m.invites.Update(ctx, invitationID, func(inv *domain.Invitation) error {
		inv.SessionID = s.ID
		return nil
	}); err != nil {
		m.log.Warn("record session on invitation", zap.String("invitation", invitationID), zap.Error(err))
	}

	// Both parties are committed; no lobby countdown for direct invites.
	if err := m.starter.StartNow(ctx, s.ID); err != nil {
		return domain.Session{}, fmt.Errorf("start invited battle: %w", err)
	}
	started, err := m.sessions.Get(ctx, s.ID)
	if err != nil {
		return s, nil
	}
	m.log.Info("invitation accepted", zap.String("invitation", invitationID), zap.String("session", s.ID))
	return started, nil
}

// release rolls a failed accept back to pending so it stays retryable.
func (m *Manager) release(ctx context.Context, invitationID string) {
	if _, err := m.invites.Update(ctx, invitationID, func(inv *domain.Invitation) error {
		if inv.Status != domain.InviteAccepted || inv.SessionID != "" {
			return domain.ErrInvalidState
		}
		inv.Status = domain.InvitePending
		return nil
	}); err != nil {
		m.log.Warn("release claimed invitation", zap.String("invitation", invitationID), zap.Error(err))
	}
}

// Reject declines a pending invitation; any other status is ErrInvalidState.
func (m *Manager) Reject(ctx context.Context, invitationID string) error {
	_, err := m.invites.Update(ctx, invitationID, func(inv *domain.Invitation) error {
		if inv.Status != domain.InvitePending {
			return domain.ErrInvalidState
		}
		inv.Status = domain.InviteRejected
		return nil
	})
	return err
}
