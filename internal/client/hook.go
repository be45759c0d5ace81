// Package client is the participant-side sync adapter: it joins a live
// session, mirrors the session document from the subscription stream,
// reconciles out-of-order snapshots by version, and reconnects with backoff
// when the stream or the network drops.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/randomizer"
	"live-quiz-service/internal/store"
)

const (
	reconnectInitialDelay = 3 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// Service is the slice of the live quiz service the hook drives.
type Service interface {
	Join(ctx context.Context, sessionID, participantID, name string) error
	Subscribe(ctx context.Context, sessionID string) (<-chan store.Event, func(), error)
	SubmitAnswer(ctx context.Context, sessionID, participantID string, questionIndex, answer int) error
	UpdateScore(ctx context.Context, sessionID, participantID string, score int) error
}

// Hook mirrors one participant's view of a session.
type Hook struct {
	service Service
	clock   clockwork.Clock
	shuffle *randomizer.Randomizer

	sessionID     string
	participantID string
	name          string

	mu        sync.RWMutex
	mirror    *domain.Session
	connected bool
	lastErr   error

	netCh  chan bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the run loop.
	events    <-chan store.Event
	cancelSub func()
	retry     clockwork.Timer
	backoff   time.Duration
}

func NewHook(service Service, clock clockwork.Clock, sessionID, participantID, name string) *Hook {
	return &Hook{
		service:       service,
		clock:         clock,
		shuffle:       randomizer.New(participantID, sessionID),
		sessionID:     sessionID,
		participantID: participantID,
		name:          name,
		netCh:         make(chan bool, 4),
		backoff:       reconnectInitialDelay,
	}
}

// Start joins the session and opens the subscription. Failures after startup
// are handled by the reconnect loop; a failure here is returned directly.
func (h *Hook) Start(ctx context.Context) error {
	if err := h.service.Join(ctx, h.sessionID, h.participantID, h.name); err != nil {
		return err
	}
	events, cancelSub, err := h.service.Subscribe(ctx, h.sessionID)
	if err != nil {
		return err
	}
	h.events = events
	h.cancelSub = cancelSub

	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.wg.Add(1)
	go h.run(runCtx)
	return nil
}

// Stop tears down the subscription and any pending reconnect timer.
func (h *Hook) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

// SetOnline feeds network transitions into the hook. Offline marks the hook
// disconnected immediately; online while disconnected triggers a full rejoin.
func (h *Hook) SetOnline(online bool) {
	select {
	case h.netCh <- online:
	default:
	}
}

func (h *Hook) run(ctx context.Context) {
	defer h.wg.Done()
	defer func() {
		if h.cancelSub != nil {
			h.cancelSub()
		}
		h.stopRetry()
	}()

	var retryCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-h.events:
			if !ok {
				h.events = nil
				h.markDisconnected(domain.ErrConnectivityLost)
				if retryCh == nil {
					retryCh = h.scheduleRetry()
				}
				continue
			}
			if ev.Err != nil {
				h.markDisconnected(ev.Err)
				if retryCh == nil {
					retryCh = h.scheduleRetry()
				}
				continue
			}
			h.applySnapshot(ev.Session)
			// A live snapshot cancels any pending reconnect.
			h.stopRetry()
			retryCh = nil

		case online := <-h.netCh:
			if !online {
				h.markDisconnected(domain.ErrConnectivityLost)
				continue
			}
			if h.Connected() {
				continue
			}
			h.stopRetry()
			retryCh = nil
			if err := h.rejoin(ctx); err != nil {
				h.markDisconnected(err)
				retryCh = h.scheduleRetry()
			}

		case <-retryCh:
			h.retry = nil
			retryCh = nil
			if err := h.rejoin(ctx); err != nil {
				h.markDisconnected(err)
				retryCh = h.scheduleRetry()
			}
		}
	}
}

// applySnapshot replaces the mirror unless the snapshot is stale. Any
// successful delivery marks the hook connected, even a discarded one.
func (h *Hook) applySnapshot(snap *domain.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = true
	h.lastErr = nil
	h.backoff = reconnectInitialDelay
	if h.mirror != nil && snap.Version <= h.mirror.Version {
		log.Debug().Str("session_id", h.sessionID).
			Int64("version", snap.Version).Int64("held", h.mirror.Version).
			Msg("discarding stale snapshot")
		return
	}
	h.mirror = snap
}

func (h *Hook) markDisconnected(err error) {
	h.mu.Lock()
	h.connected = false
	h.lastErr = err
	h.mu.Unlock()
}

// rejoin re-runs the join and replaces the subscription stream.
func (h *Hook) rejoin(ctx context.Context) error {
	log.Debug().Str("session_id", h.sessionID).Str("participant_id", h.participantID).Msg("reconnecting")
	if err := h.service.Join(ctx, h.sessionID, h.participantID, h.name); err != nil {
		return err
	}
	events, cancelSub, err := h.service.Subscribe(ctx, h.sessionID)
	if err != nil {
		return err
	}
	if h.cancelSub != nil {
		h.cancelSub()
	}
	h.events = events
	h.cancelSub = cancelSub
	return nil
}

func (h *Hook) scheduleRetry() <-chan time.Time {
	h.mu.Lock()
	delay := h.backoff
	h.backoff *= 2
	if h.backoff > reconnectMaxDelay {
		h.backoff = reconnectMaxDelay
	}
	h.mu.Unlock()
	h.retry = h.clock.NewTimer(delay)
	return h.retry.Chan()
}

func (h *Hook) stopRetry() {
	if h.retry != nil {
		h.retry.Stop()
		h.retry = nil
	}
}

// SubmitAnswer fast-fails locally (not connected, question moved on, already
// answered) before the authoritative server round trip. On a correct answer
// the hook writes its own participant's score; nobody else writes that field.
func (h *Hook) SubmitAnswer(ctx context.Context, questionIndex, answer int) error {
	h.mu.RLock()
	mirror := h.mirror
	connected := h.connected
	h.mu.RUnlock()

	if !connected || mirror == nil {
		return domain.ErrNotConnected
	}
	if questionIndex != mirror.CurrentQuestionIndex {
		return domain.ErrQuestionChanged
	}
	if p, ok := mirror.Participants[h.participantID]; ok {
		if _, answered := p.Answers[questionIndex]; answered {
			return domain.ErrAlreadySubmitted
		}
	}

	if err := h.service.SubmitAnswer(ctx, h.sessionID, h.participantID, questionIndex, answer); err != nil {
		return err
	}

	question := mirror.CurrentQuestion()
	if question != nil && answer == question.CorrectOptionIndex {
		score := 0
		if p, ok := mirror.Participants[h.participantID]; ok {
			score = p.Score
		}
		if err := h.service.UpdateScore(ctx, h.sessionID, h.participantID, score+1); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the mirrored session, or nil before the first snapshot.
func (h *Hook) Snapshot() *domain.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror
}

// Connected reports whether the last delivery on the stream succeeded.
func (h *Hook) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Err returns the most recent connectivity or subscription error.
func (h *Hook) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}

// CurrentQuestion returns the mirrored current question, if any.
func (h *Hook) CurrentQuestion() *domain.Question {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.mirror == nil {
		return nil
	}
	return h.mirror.CurrentQuestion()
}

// ShuffledQuestion returns the current question with this participant's
// option order. Displaying options through it keeps neighbouring players from
// trading option letters; pass selections to SubmitShuffledAnswer.
func (h *Hook) ShuffledQuestion() (randomizer.RandomizedQuestion, bool) {
	h.mu.RLock()
	mirror := h.mirror
	h.mu.RUnlock()
	if mirror == nil {
		return randomizer.RandomizedQuestion{}, false
	}
	q := mirror.CurrentQuestion()
	if q == nil {
		return randomizer.RandomizedQuestion{}, false
	}
	return h.shuffle.RandomizeQuestion(*q, mirror.CurrentQuestionIndex), true
}

// SubmitShuffledAnswer maps a selection made against the shuffled option
// order back to the canonical index and submits it. An out-of-range selection
// is submitted as -1, meaning no answer.
func (h *Hook) SubmitShuffledAnswer(ctx context.Context, questionIndex, shuffledOption int) error {
	h.mu.RLock()
	mirror := h.mirror
	h.mu.RUnlock()
	if mirror == nil {
		return domain.ErrNotConnected
	}
	q := mirror.CurrentQuestion()
	if q == nil || questionIndex != mirror.CurrentQuestionIndex {
		return domain.ErrQuestionChanged
	}
	shuffled := h.shuffle.RandomizeQuestion(*q, questionIndex)
	answer, ok := randomizer.ConvertToOriginalIndex(shuffledOption, shuffled.Mapping)
	if !ok {
		answer = -1
	}
	return h.SubmitAnswer(ctx, questionIndex, answer)
}

// Participant returns this participant's mirrored roster entry.
func (h *Hook) Participant() *domain.Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.mirror == nil {
		return nil
	}
	return h.mirror.Participants[h.participantID]
}
