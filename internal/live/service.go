// Package live owns the hosted-quiz session state machine: host operations
// mutate the session document in the store, the store fans the new snapshot
// out to every subscriber, and a per-session timer loop drives the countdown
// and question auto-advance.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/randomizer"
	"live-quiz-service/internal/store"
)

// DefaultTimePerQuestion is used when a session is created without an
// explicit per-question limit.
const DefaultTimePerQuestion = 45

// Service implements the live quiz operations. All operations are a single
// patch against the session document; the timer registry guarantees at most
// one countdown loop per session.
type Service struct {
	store store.Store
	clock clockwork.Clock

	// session id -> context.CancelFunc of the active timer loop
	timers sync.Map
}

func NewService(st store.Store, clock clockwork.Clock) *Service {
	return &Service{store: st, clock: clock}
}

// Create makes a new session in the waiting state and returns its snapshot.
func (s *Service) Create(ctx context.Context, hostID string, questions []domain.Question, timePerQuestion int) (*domain.Session, error) {
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	if timePerQuestion <= 0 {
		timePerQuestion = DefaultTimePerQuestion
	}
	session := domain.NewSession(randomizer.NewSessionID(), hostID, questions, timePerQuestion, s.store.Now())
	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("session_id", session.ID).Str("host_id", hostID).
		Int("questions", len(questions)).Msg("session created")
	return session, nil
}

// Join upserts a participant. Rejoining with a known id refreshes identity
// fields but never erases recorded answers or score.
func (s *Service) Join(ctx context.Context, sessionID, participantID, name string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	var fields map[string]any
	if _, ok := session.Participants[participantID]; ok {
		fields = map[string]any{
			"participants." + participantID + ".name":     name,
			"participants." + participantID + ".isActive": true,
		}
	} else {
		fields = map[string]any{
			"participants." + participantID: &domain.Participant{
				ID:       participantID,
				Name:     name,
				Score:    0,
				Answers:  make(map[int]domain.Answer),
				IsActive: true,
				JoinedAt: s.store.Now(),
			},
		}
	}
	if _, err := s.store.Patch(ctx, sessionID, fields); err != nil {
		return err
	}
	log.Debug().Str("session_id", sessionID).Str("participant_id", participantID).Msg("participant joined")
	return nil
}

// Start moves a waiting session to active at question zero and spawns the
// question timer. Restarting a finished session requires an explicit Reset.
func (s *Service) Start(ctx context.Context, sessionID string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusWaiting {
		return fmt.Errorf("%w: status is %s", domain.ErrAlreadyStarted, session.Status)
	}
	_, err = s.store.Patch(ctx, sessionID, map[string]any{
		"status":               domain.StatusActive,
		"startedAt":            s.store.Now(),
		"currentQuestionIndex": 0,
		"timeLeft":             session.TimePerQuestion,
	})
	if err != nil {
		return err
	}
	s.startQuestionTimer(sessionID)
	log.Info().Str("session_id", sessionID).Msg("session started")
	return nil
}

// Pause freezes the countdown; the timer loop observes the paused status on
// its next tick and exits.
func (s *Service) Pause(ctx context.Context, sessionID string) error {
	_, err := s.store.Patch(ctx, sessionID, map[string]any{
		"status":   domain.StatusPaused,
		"pausedAt": s.store.Now(),
	})
	return err
}

// Resume restarts the countdown from wherever it was; timeLeft is not reset.
func (s *Service) Resume(ctx context.Context, sessionID string) error {
	_, err := s.store.Patch(ctx, sessionID, map[string]any{
		"status":    domain.StatusActive,
		"resumedAt": s.store.Now(),
	})
	if err != nil {
		return err
	}
	s.startQuestionTimer(sessionID)
	return nil
}

// Stop ends the session early. Terminal until Reset.
func (s *Service) Stop(ctx context.Context, sessionID string) error {
	s.cancelQuestionTimer(sessionID)
	now := s.store.Now()
	_, err := s.store.Patch(ctx, sessionID, map[string]any{
		"status":      domain.StatusStopped,
		"stoppedAt":   now,
		"completedAt": now,
	})
	if err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Msg("session stopped")
	return nil
}

// ForceNextQuestion advances to the next question, or completes the session
// when none remain. Returns true when the session completed.
func (s *Service) ForceNextQuestion(ctx context.Context, sessionID string) (bool, error) {
	return s.advance(ctx, sessionID)
}

// Reset returns the session to the waiting state, clearing the roster and
// every lifecycle timestamp.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	s.cancelQuestionTimer(sessionID)
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	_, err = s.store.Patch(ctx, sessionID, map[string]any{
		"status":               domain.StatusWaiting,
		"currentQuestionIndex": 0,
		"timeLeft":             session.TimePerQuestion,
		"startedAt":            nil,
		"pausedAt":             nil,
		"resumedAt":            nil,
		"stoppedAt":            nil,
		"completedAt":          nil,
		"participants":         nil,
	})
	if err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Msg("session reset")
	return nil
}

// SubmitAnswer records an answer for the current question. A second
// submission for the same question overwrites the first (last write wins).
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, participantID string, questionIndex, answer int) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := session.Participants[participantID]; !ok {
		return domain.ErrParticipantNotFound
	}
	if session.Status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}
	if questionIndex != session.CurrentQuestionIndex {
		return domain.ErrQuestionChanged
	}
	path := fmt.Sprintf("participants.%s.answers.%d", participantID, questionIndex)
	_, err = s.store.Patch(ctx, sessionID, map[string]any{
		path: domain.Answer{SelectedOption: answer, SubmittedAt: s.store.Now()},
	})
	return err
}

// UpdateScore overwrites a participant's score. Each participant's score is
// only ever written on behalf of that participant, so there is no
// cross-participant race, only a single-writer ordering concern.
func (s *Service) UpdateScore(ctx context.Context, sessionID, participantID string, score int) error {
	_, err := s.store.Patch(ctx, sessionID, map[string]any{
		"participants." + participantID + ".score": score,
	})
	return err
}

// Get returns the current session snapshot.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// Subscribe opens a snapshot stream for the session.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan store.Event, func(), error) {
	return s.store.Subscribe(ctx, sessionID)
}

// Shutdown cancels every running timer loop.
func (s *Service) Shutdown() {
	s.timers.Range(func(key, value any) bool {
		(*value.(*context.CancelFunc))()
		s.timers.Delete(key)
		return true
	})
}
