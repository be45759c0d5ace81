package live

import (
	"context"

	"live-quiz-service/internal/domain"
)

// QuestionRepository loads quiz content (from cache/backing store) for
// session creation.
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) ([]domain.Question, error)
}
