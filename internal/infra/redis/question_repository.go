package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader fetches question banks from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category, difficulty string) ([]domain.Question, error)
}

// QuestionRepository caches question banks in Redis per (category, difficulty)
// and samples battle sequences from them. Cache fills are singleflight-guarded
// and TTLs carry up to 10% jitter to spread expirations.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch returns count questions sampled without replacement from the bank.
func (r *QuestionRepository) Fetch(ctx context.Context, category, difficulty string, count int) ([]domain.Question, error) {
	bank, err := r.bank(ctx, category, difficulty)
	if err != nil {
		return nil, err
	}
	return sample(bank, count, r.rnd)
}

func (r *QuestionRepository) bank(ctx context.Context, category, difficulty string) ([]domain.Question, error) {
	key := r.key(category, difficulty)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var bank []domain.Question
		if err := json.Unmarshal(data, &bank); err == nil {
			return bank, nil
		}
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		data, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			var bank []domain.Question
			if err := json.Unmarshal(data, &bank); err == nil {
				return bank, nil
			}
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("question cache: %w", err)
		}

		bank, err := r.loader.LoadQuestions(ctx, category, difficulty)
		if err != nil {
			return nil, err
		}

		if encoded, err := json.Marshal(bank); err == nil {
			_ = r.client.Set(ctx, key, encoded, r.ttlWithJitter()).Err()
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) key(category, difficulty string) string {
	return "battle:questions:" + category + ":" + difficulty
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// sample picks count questions without replacement, preserving none of the
// bank order so repeated battles see different sequences.
func sample(bank []domain.Question, count int, rnd *rand.Rand) ([]domain.Question, error) {
	if len(bank) < count {
		return nil, domain.ErrNotEnoughQuestions
	}
	picked := make([]domain.Question, 0, count)
	for _, i := range rnd.Perm(len(bank))[:count] {
		picked = append(picked, bank[i])
	}
	return picked, nil
}
