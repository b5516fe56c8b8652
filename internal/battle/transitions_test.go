package battle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-battle-service/internal/battle"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

const window = 15 * time.Second

func activeSession(players ...string) *domain.Session {
	scores := make(map[string]int, len(players))
	for _, p := range players {
		scores[p] = 0
	}
	questions := make([]domain.Question, 5)
	for i := range questions {
		questions[i] = domain.Question{
			ID: string(rune('a' + i)),
			Options: []domain.Option{
				{ID: "o1", Correct: false},
				{ID: "o2", Correct: true},
			},
		}
	}
	return &domain.Session{
		ID:         "s1",
		Status:     domain.StatusActive,
		Players:    players,
		MaxPlayers: len(players),
		Questions:  questions,
		Scores:     scores,
		CreatedBy:  players[0],
		CreatedAt:  time.Now(),
	}
}

func TestStartRequiresWaiting(t *testing.T) {
	s := activeSession("a", "b")
	if err := battle.Start(time.Now(), window)(s); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	s.Status = domain.StatusWaiting
	if err := battle.Start(time.Now(), window)(s); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != domain.StatusActive || s.CurrentQuestion != 0 || s.QuestionDeadline.IsZero() {
		t.Fatalf("unexpected state after start: %+v", s)
	}
}

func TestAdvanceIsMonotonicAndBounded(t *testing.T) {
	s := activeSession("a", "b")

	for i := 1; i < len(s.Questions); i++ {
		if err := battle.Advance(time.Now(), window)(s); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if s.CurrentQuestion != i {
			t.Fatalf("expected index %d, got %d", i, s.CurrentQuestion)
		}
	}

	// Advancing past the last question terminates instead of overrunning.
	if err := battle.Advance(time.Now(), window)(s); err != nil {
		t.Fatalf("terminal advance: %v", err)
	}
	if s.Status != domain.StatusEnded || s.CurrentQuestion != len(s.Questions)-1 {
		t.Fatalf("expected ended at last index, got %+v", s)
	}

	// Further advances are rejected, never decrementing or overrunning.
	if err := battle.Advance(time.Now(), window)(s); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state after end, got %v", err)
	}
}

func TestAdvanceAccruesWinnerPoint(t *testing.T) {
	s := activeSession("a", "b")
	s.CurrentAnswer = &domain.Answer{WinnerID: "b", AnsweredAt: time.Now()}

	if err := battle.Advance(time.Now(), window)(s); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if s.Scores["b"] != 1 || s.Scores["a"] != 0 {
		t.Fatalf("unexpected scores: %v", s.Scores)
	}
	if s.CurrentAnswer != nil {
		t.Fatal("answer not cleared on advance")
	}
}

func TestRecordAnswerFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	s := activeSession("a", "b")
	_ = m.Create(ctx, s)

	if _, err := m.Update(ctx, "s1", battle.RecordAnswer("b", 0, time.Now())); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	_, err := m.Update(ctx, "s1", battle.RecordAnswer("a", 0, time.Now()))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for second writer, got %v", err)
	}

	got, _ := m.Get(ctx, "s1")
	if got.CurrentAnswer == nil || got.CurrentAnswer.WinnerID != "b" {
		t.Fatalf("expected b to hold the answer, got %+v", got.CurrentAnswer)
	}
}

func TestRecordAnswerRejectsStaleIndex(t *testing.T) {
	s := activeSession("a", "b")
	s.CurrentQuestion = 2

	if err := battle.RecordAnswer("a", 1, time.Now())(s); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale index, got %v", err)
	}
	if err := battle.RecordAnswer("intruder", 2, time.Now())(s); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected participant check, got %v", err)
	}
}

func TestForfeitConcedesFullVictory(t *testing.T) {
	s := activeSession("a", "b")
	s.Scores["a"] = 2
	s.Scores["b"] = 1

	if err := battle.Forfeit("a", time.Now())(s); err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if s.Status != domain.StatusEnded || s.EndedBy != "a" {
		t.Fatalf("unexpected state: %+v", s)
	}
	if s.Scores["a"] != 2 || s.Scores["b"] != 5 {
		t.Fatalf("expected {a:2 b:5}, got %v", s.Scores)
	}
}

func TestCancelSkipsTerminalSessions(t *testing.T) {
	s := activeSession("a", "b")
	if err := battle.Cancel(time.Now())(s); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", s.Status)
	}
	if err := battle.Cancel(time.Now())(s); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on double cancel, got %v", err)
	}
}

func TestClaimResultsIsSingleWinner(t *testing.T) {
	s := activeSession("a", "b")
	s.Status = domain.StatusEnded

	if err := battle.ClaimResults()(s); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := battle.ClaimResults()(s); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}
}
