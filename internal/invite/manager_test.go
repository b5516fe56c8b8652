package invite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"quiz-battle-service/internal/battle"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/invite"
	"quiz-battle-service/internal/store"
)

type immediateStarter struct {
	mu      sync.Mutex
	store   *store.Memory
	started []string
}

func (s *immediateStarter) StartNow(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	s.started = append(s.started, sessionID)
	s.mu.Unlock()
	_, err := s.store.Update(ctx, sessionID, battle.Start(time.Now(), 15*time.Second))
	return err
}

func newManager(t *testing.T) (*invite.Manager, *store.Memory, *memory.InvitationStore, *immediateStarter) {
	t.Helper()
	sessions := store.NewMemory()
	invites := memory.NewInvitationStore()
	starter := &immediateStarter{store: sessions}
	questions := memory.NewQuestionSource(inviteBank())
	m := invite.NewManager(invites, sessions, questions, starter,
		config.BattleConfig{}.Timings(), "general", "easy", zap.NewNop())
	return m, sessions, invites, starter
}

func inviteBank() []domain.Question {
	qs := make([]domain.Question, 6)
	for i := range qs {
		qs[i] = domain.Question{
			ID:         string(rune('a' + i)),
			Category:   "general",
			Difficulty: "easy",
			Options: []domain.Option{
				{ID: "o1", Correct: true},
				{ID: "o2", Correct: false},
			},
		}
	}
	return qs
}

func TestSendCreatesPendingInvitation(t *testing.T) {
	ctx := context.Background()
	m, _, invites, _ := newManager(t)

	inv, err := m.Send(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if inv.Status != domain.InvitePending || inv.SenderID != "alice" || inv.ReceiverID != "bob" {
		t.Fatalf("unexpected invitation: %+v", inv)
	}

	stored, err := invites.Get(ctx, inv.ID)
	if err != nil || stored.Status != domain.InvitePending {
		t.Fatalf("invitation not persisted: %+v err=%v", stored, err)
	}
}

func TestAcceptCreatesOneSessionAndStarts(t *testing.T) {
	ctx := context.Background()
	m, sessions, invites, starter := newManager(t)

	inv, _ := m.Send(ctx, "alice", "bob")
	s, err := m.Accept(ctx, inv.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if s.Status != domain.StatusActive {
		t.Fatalf("invited battle must start immediately, got %s", s.Status)
	}
	if len(s.Players) != 2 || s.Players[0] != "alice" || s.Players[1] != "bob" {
		t.Fatalf("unexpected roster: %v", s.Players)
	}
	if s.MaxPlayers != 2 {
		t.Fatalf("invite sessions are head-to-head, got max %d", s.MaxPlayers)
	}

	stored, _ := invites.Get(ctx, inv.ID)
	if stored.Status != domain.InviteAccepted || stored.SessionID != s.ID {
		t.Fatalf("invitation not linked to session: %+v", stored)
	}

	// A second accept fails before creating anything.
	if _, err := m.Accept(ctx, inv.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on double accept, got %v", err)
	}
	starter.mu.Lock()
	startedOnce := len(starter.started) == 1
	starter.mu.Unlock()
	if !startedOnce {
		t.Fatalf("expected exactly one start, got %v", starter.started)
	}
	if _, err := sessions.Get(ctx, s.ID); err != nil {
		t.Fatalf("session missing: %v", err)
	}
}

func TestAcceptRejectedInvitationFails(t *testing.T) {
	ctx := context.Background()
	m, _, _, starter := newManager(t)

	inv, _ := m.Send(ctx, "alice", "bob")
	if err := m.Reject(ctx, inv.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := m.Accept(ctx, inv.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	starter.mu.Lock()
	defer starter.mu.Unlock()
	if len(starter.started) != 0 {
		t.Fatalf("rejected invitation must not start a battle: %v", starter.started)
	}
}

func TestRejectIsFinal(t *testing.T) {
	ctx := context.Background()
	m, _, invites, _ := newManager(t)

	inv, _ := m.Send(ctx, "alice", "bob")
	if err := m.Reject(ctx, inv.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := m.Reject(ctx, inv.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on double reject, got %v", err)
	}

	stored, _ := invites.Get(ctx, inv.ID)
	if stored.Status != domain.InviteRejected {
		t.Fatalf("unexpected status: %s", stored.Status)
	}
}

type flakySource struct {
	failures int
	bank     []domain.Question
}

func (f *flakySource) Fetch(_ context.Context, _, _ string, count int) ([]domain.Question, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("question bank unavailable")
	}
	return f.bank[:count], nil
}

func TestAcceptLeavesInvitationRetryableOnSourceFailure(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewMemory()
	invites := memory.NewInvitationStore()
	starter := &immediateStarter{store: sessions}
	source := &flakySource{failures: 1, bank: inviteBank()}
	m := invite.NewManager(invites, sessions, source, starter,
		config.BattleConfig{}.Timings(), "general", "easy", zap.NewNop())

	inv, _ := m.Send(ctx, "alice", "bob")
	if _, err := m.Accept(ctx, inv.ID); err == nil {
		t.Fatal("expected accept to fail while the source is down")
	}

	stored, _ := invites.Get(ctx, inv.ID)
	if stored.Status != domain.InvitePending || stored.SessionID != "" {
		t.Fatalf("failed accept must leave the invitation pending, got %+v", stored)
	}
	starter.mu.Lock()
	started := len(starter.started)
	starter.mu.Unlock()
	if started != 0 {
		t.Fatalf("failed accept must not start a battle: %v", starter.started)
	}

	// The source recovered; the same accept now goes through.
	s, err := m.Accept(ctx, inv.ID)
	if err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if s.Status != domain.StatusActive || len(s.Players) != 2 {
		t.Fatalf("unexpected session after retry: %+v", s)
	}
	stored, _ = invites.Get(ctx, inv.ID)
	if stored.Status != domain.InviteAccepted || stored.SessionID != s.ID {
		t.Fatalf("invitation not linked after retry: %+v", stored)
	}
}

func TestAcceptUnknownInvitation(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newManager(t)

	if _, err := m.Accept(ctx, "nope"); !errors.Is(err, domain.ErrInvitationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
