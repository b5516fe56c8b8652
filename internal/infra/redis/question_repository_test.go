package redis_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"quiz-battle-service/internal/domain"
	redisinfra "quiz-battle-service/internal/infra/redis"
)

type countingLoader struct {
	loads int32
	bank  []domain.Question
}

func (l *countingLoader) LoadQuestions(_ context.Context, _, _ string) ([]domain.Question, error) {
	atomic.AddInt32(&l.loads, 1)
	return append([]domain.Question(nil), l.bank...), nil
}

func questionBank(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:         string(rune('a' + i)),
			Category:   "general",
			Difficulty: "easy",
			Options:    []domain.Option{{ID: "o1", Correct: true}},
		}
	}
	return qs
}

func TestFetchSamplesWithoutReplacement(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{bank: questionBank(10)}
	repo := redisinfra.NewQuestionRepository(newClient(t), loader, time.Hour)

	qs, err := repo.Fetch(ctx, "general", "easy", 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(qs) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(qs))
	}
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		if seen[q.ID] {
			t.Fatalf("question %s sampled twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestFetchCachesBank(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{bank: questionBank(10)}
	repo := redisinfra.NewQuestionRepository(newClient(t), loader, time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := repo.Fetch(ctx, "general", "easy", 5); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&loader.loads); got != 1 {
		t.Fatalf("expected a single backing load, got %d", got)
	}
}

func TestFetchRejectsShortBank(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{bank: questionBank(3)}
	repo := redisinfra.NewQuestionRepository(newClient(t), loader, time.Hour)

	if _, err := repo.Fetch(ctx, "general", "easy", 5); !errors.Is(err, domain.ErrNotEnoughQuestions) {
		t.Fatalf("expected not enough questions, got %v", err)
	}
}
