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

	"live-quiz-service/internal/domain"
)

// QuestionLoader fetches quiz content from a backing store (file, postgres).
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) ([]domain.Question, error)
}

// QuestionRepository caches question sets as JSON in Redis
// (SET questions:{setID}) and falls back to the loader on cache miss.
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

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, setID string) ([]domain.Question, error) {
	key := r.key(setID)

	raw, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		return decodeQuestions(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("question cache read: %w", err)
	}

	result, err, _ := r.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			questions, err := decodeQuestions(raw)
			if err != nil {
				return nil, err
			}
			return questions, nil
		}

		questions, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("encode questions: %w", err)
		}
		_ = r.client.Set(ctx, key, encoded, r.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) key(setID string) string {
	return "questions:" + setID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func decodeQuestions(raw []byte) ([]domain.Question, error) {
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return questions, nil
}
