package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// QuestionSource serves battle question sequences from a static in-memory
// bank, keyed by (category, difficulty). Used by tests and redis-less runs.
type QuestionSource struct {
	mu   sync.RWMutex
	bank map[string][]domain.Question
	rnd  *rand.Rand
}

func NewQuestionSource(questions []domain.Question) *QuestionSource {
	s := &QuestionSource{
		bank: make(map[string][]domain.Question),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, q := range questions {
		key := bankKey(q.Category, q.Difficulty)
		s.bank[key] = append(s.bank[key], q)
	}
	return s
}

// Fetch samples count questions without replacement.
func (s *QuestionSource) Fetch(_ context.Context, category, difficulty string, count int) ([]domain.Question, error) {
	s.mu.RLock()
	bank := s.bank[bankKey(category, difficulty)]
	s.mu.RUnlock()

	if len(bank) < count {
		return nil, domain.ErrNotEnoughQuestions
	}
	picked := make([]domain.Question, 0, count)
	for _, i := range s.rnd.Perm(len(bank))[:count] {
		picked = append(picked, bank[i])
	}
	return picked, nil
}

// LoadQuestions implements the loader contract of the redis question cache,
// so the static bank can sit behind it in tests.
func (s *QuestionSource) LoadQuestions(_ context.Context, category, difficulty string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bank := s.bank[bankKey(category, difficulty)]
	return append([]domain.Question(nil), bank...), nil
}

func bankKey(category, difficulty string) string {
	return category + ":" + difficulty
}
