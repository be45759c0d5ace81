package live

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// startQuestionTimer spawns the countdown loop for a session, cancelling any
// loop already registered for it. Overlapping loops would double-decrement
// timeLeft, so the registry keeps at most one per session.
func (s *Service) startQuestionTimer(sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	// Stored as a pointer because sync.Map compares values with == in
	// CompareAndDelete and funcs are not comparable.
	if prev, loaded := s.timers.Swap(sessionID, &cancel); loaded {
		(*prev.(*context.CancelFunc))()
	}
	go s.runQuestionTimer(ctx, sessionID, &cancel)
}

func (s *Service) cancelQuestionTimer(sessionID string) {
	if cancel, loaded := s.timers.LoadAndDelete(sessionID); loaded {
		(*cancel.(*context.CancelFunc))()
	}
}

// runQuestionTimer ticks once per second. Each tick re-reads the document,
// exits on any non-active status, decrements timeLeft floored at zero, and
// auto-advances when the countdown hits zero. Ticks are not transactional
// against concurrent host actions; last write wins.
func (s *Service) runQuestionTimer(ctx context.Context, sessionID string, self *context.CancelFunc) {
	defer func() {
		(*self)()
		s.timers.CompareAndDelete(sessionID, self)
	}()

	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			session, err := s.store.Get(ctx, sessionID)
			if err != nil {
				if !errors.Is(err, domain.ErrSessionNotFound) {
					log.Warn().Err(err).Str("session_id", sessionID).Msg("timer tick read failed")
				}
				return
			}
			if session.Status != domain.StatusActive {
				return
			}

			timeLeft := session.TimeLeft - 1
			if timeLeft < 0 {
				timeLeft = 0
			}
			if _, err := s.store.Patch(ctx, sessionID, map[string]any{"timeLeft": timeLeft}); err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("timer tick write failed")
				return
			}

			if timeLeft == 0 {
				// The advance cancels this loop's context via the registry,
				// so its writes must not inherit the cancellation.
				if _, err := s.advance(context.WithoutCancel(ctx), sessionID); err != nil {
					log.Warn().Err(err).Str("session_id", sessionID).Msg("auto-advance failed")
				}
				return
			}
		}
	}
}

// advance moves the session to the next question with a fresh countdown, or
// completes it when the last question has run out. A new timer loop replaces
// the advancing one via the registry.
func (s *Service) advance(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}

	next := session.CurrentQuestionIndex + 1
	if next >= session.TotalQuestions {
		s.cancelQuestionTimer(sessionID)
		_, err := s.store.Patch(ctx, sessionID, map[string]any{
			"status":      domain.StatusCompleted,
			"completedAt": s.store.Now(),
		})
		if err != nil {
			return false, err
		}
		log.Info().Str("session_id", sessionID).Msg("session completed")
		return true, nil
	}

	_, err = s.store.Patch(ctx, sessionID, map[string]any{
		"currentQuestionIndex": next,
		"timeLeft":             session.TimePerQuestion,
		"status":               domain.StatusActive,
	})
	if err != nil {
		return false, err
	}
	s.startQuestionTimer(sessionID)
	log.Debug().Str("session_id", sessionID).Int("question_index", next).Msg("advanced to next question")
	return false, nil
}
