package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// QuestionSource loads question banks stored as JSONB rows.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

// LoadQuestions returns every question in a category/difficulty bank. It
// feeds the redis cache, which handles sampling and TTLs.
func (s *QuestionSource) LoadQuestions(ctx context.Context, category, difficulty string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM questions WHERE category=$1 AND difficulty=$2`, category, difficulty)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var bank []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		bank = append(bank, q)
	}
	return bank, rows.Err()
}
