// Package randomizer shuffles answer options per participant and per quiz
// attempt so neighbouring players cannot trade option letters. The shuffle is
// reproducible from (participant id, attempt id) and is deterrence-grade, not
// cryptographic: a determined participant could reverse the sequence.
package randomizer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

// Randomizer derives one combined seed per (participant, attempt) pair and
// produces a per-question option permutation plus its inverse.
type Randomizer struct {
	combinedSeed int64
}

func New(participantID, attemptID string) *Randomizer {
	return &Randomizer{combinedSeed: hashString(participantID) + hashString(attemptID)}
}

// RandomizedQuestion is a question with shuffled options. CorrectOptionIndex
// is rewritten to the shuffled position of the original correct answer, and
// Mapping[newIndex] = originalIndex recovers canonical indices for scoring.
type RandomizedQuestion struct {
	domain.Question
	Mapping []int
}

// RandomizeQuestion shuffles one question's options. The question's ordinal
// position feeds the seed so each question gets its own permutation.
func (r *Randomizer) RandomizeQuestion(q domain.Question, questionIndex int) RandomizedQuestion {
	correctText := ""
	if q.CorrectOptionIndex >= 0 && q.CorrectOptionIndex < len(q.Options) {
		correctText = q.Options[q.CorrectOptionIndex]
	}

	mapping := make([]int, len(q.Options))
	for i := range mapping {
		mapping[i] = i
	}

	seed := r.combinedSeed + int64(questionIndex)*1000
	shuffled := append([]string(nil), q.Options...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := int(seededRandom(seed+int64(i)) * float64(i+1))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		mapping[i], mapping[j] = mapping[j], mapping[i]
	}

	// Value match; with duplicate option text the first shuffled position wins.
	newCorrect := 0
	for i, opt := range shuffled {
		if opt == correctText {
			newCorrect = i
			break
		}
	}

	out := q
	out.Options = shuffled
	out.CorrectOptionIndex = newCorrect
	return RandomizedQuestion{Question: out, Mapping: mapping}
}

// RandomizeQuiz shuffles every question in order.
func (r *Randomizer) RandomizeQuiz(questions []domain.Question) []RandomizedQuestion {
	out := make([]RandomizedQuestion, len(questions))
	for i, q := range questions {
		out[i] = r.RandomizeQuestion(q, i)
	}
	return out
}

// ConvertToOriginalIndex maps a selected shuffled index back to the canonical
// option index. Out-of-range selections mean "no answer" rather than an error.
func ConvertToOriginalIndex(selected int, mapping []int) (int, bool) {
	if selected < 0 || selected >= len(mapping) {
		return 0, false
	}
	return mapping[selected], true
}

// hashString is the classic 31-multiplier string hash over 32-bit integers,
// folded to a non-negative value.
func hashString(s string) int64 {
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		h = -h
	}
	return int64(h)
}

// seededRandom is frac(sin(seed) * 10000): deterministic and uniform enough
// for option shuffling.
func seededRandom(seed int64) float64 {
	x := math.Sin(float64(seed)) * 10000
	return x - math.Floor(x)
}

// NewSessionID generates a collision-resistant live session key.
func NewSessionID() string {
	return newPrefixedID("quiz")
}

// NewParticipantID generates a client-side participant identity.
func NewParticipantID() string {
	return newPrefixedID("user")
}

func newPrefixedID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}
