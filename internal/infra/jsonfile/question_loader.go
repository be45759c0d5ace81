// Package jsonfile loads quiz content from static JSON files of
// {question, choices[], answer} records, the canonical content format
// (e.g. content/philosophy_questions.json).
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"live-quiz-service/internal/domain"
)

// QuestionLoader resolves a set id to <dir>/<setID>.json.
type QuestionLoader struct {
	dir string
}

func NewQuestionLoader(dir string) *QuestionLoader {
	return &QuestionLoader{dir: dir}
}

type record struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Answer   string   `json:"answer"`
}

func (l *QuestionLoader) LoadQuestionSet(_ context.Context, setID string) ([]domain.Question, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, setID+".json"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuestionSetNotFound, setID)
	}
	if err != nil {
		return nil, fmt.Errorf("read question set %s: %w", setID, err)
	}

	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse question set %s: %w", setID, err)
	}
	return questionsFromRecords(setID, records)
}

// questionsFromRecords validates and transforms raw content records. It fails
// fast on the first malformed record: a missing prompt, fewer than two
// choices, or an answer not present among the choices.
func questionsFromRecords(setID string, records []record) ([]domain.Question, error) {
	questions := make([]domain.Question, 0, len(records))
	for i, r := range records {
		if r.Question == "" {
			return nil, fmt.Errorf("%w: record %d has no question text", domain.ErrInvalidQuestion, i)
		}
		if len(r.Choices) < 2 {
			return nil, fmt.Errorf("%w: record %d needs at least two choices", domain.ErrInvalidQuestion, i)
		}
		correct := -1
		for j, c := range r.Choices {
			if c == r.Answer {
				correct = j
				break
			}
		}
		if r.Answer == "" || correct < 0 {
			return nil, fmt.Errorf("%w: record %d answer not among choices", domain.ErrInvalidQuestion, i)
		}
		questions = append(questions, domain.Question{
			ID:                 fmt.Sprintf("%s-%d", setID, i+1),
			Prompt:             r.Question,
			Options:            append([]string(nil), r.Choices...),
			CorrectOptionIndex: correct,
		})
	}
	return questions, nil
}
