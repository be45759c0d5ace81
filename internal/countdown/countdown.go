// Package countdown drives the answer submission window for one question at
// a time. In live mode the remaining time is fed in from the synced session
// snapshot; in solo mode the countdown ticks itself down from a fixed limit.
// Either way the window closes when time runs out or an answer is submitted,
// and exactly one submission is accepted per question.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
)

type mode int

const (
	modeLive mode = iota
	modeSolo
)

// Countdown is the submission-window state machine for the current question.
type Countdown struct {
	mode  mode
	clock clockwork.Clock

	mu        sync.Mutex
	remaining int
	selected  *int
	submitted bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLive builds an externally driven countdown; call SetRemaining with the
// mirrored timeLeft on every snapshot.
func NewLive(initialRemaining int) *Countdown {
	return &Countdown{mode: modeLive, remaining: initialRemaining}
}

// NewSolo builds a self-ticking countdown from a fixed time limit.
func NewSolo(limit int, clock clockwork.Clock) *Countdown {
	return &Countdown{mode: modeSolo, clock: clock, remaining: limit}
}

// Start begins ticking a solo countdown. Live countdowns never tick locally.
func (c *Countdown) Start(ctx context.Context) {
	if c.mode != modeSolo {
		return
	}
	tickCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(tickCtx)
}

// Stop halts a solo countdown's ticker.
func (c *Countdown) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		c.cancel = nil
	}
}

func (c *Countdown) run(ctx context.Context) {
	defer c.wg.Done()
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.remaining > 0 {
				c.remaining--
			}
			done := c.remaining == 0
			c.mu.Unlock()
			if done {
				return
			}
		}
	}
}

// SetRemaining mirrors the host-synced timeLeft into a live countdown.
func (c *Countdown) SetRemaining(seconds int) {
	if c.mode != modeLive {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	c.mu.Lock()
	c.remaining = seconds
	c.mu.Unlock()
}

// Remaining returns the seconds left in the current window.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// WindowOpen reports whether an answer may still be submitted.
func (c *Countdown) WindowOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining > 0 && !c.submitted
}

// Select records a tentative choice. Re-selecting before submission is always
// allowed; changing the answer afterwards is not.
func (c *Countdown) Select(option int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitted {
		return domain.ErrAlreadySubmitted
	}
	if c.remaining <= 0 {
		return domain.ErrWindowClosed
	}
	c.selected = &option
	return nil
}

// Submit commits the selected option and closes the window. Returns the
// committed option index.
func (c *Countdown) Submit() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitted {
		return 0, domain.ErrAlreadySubmitted
	}
	if c.remaining <= 0 {
		return 0, domain.ErrWindowClosed
	}
	if c.selected == nil {
		return 0, domain.ErrNothingSelected
	}
	c.submitted = true
	return *c.selected, nil
}

// Submitted reports whether an answer has been committed for this question.
func (c *Countdown) Submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// ResetForQuestion reopens the window for the next question.
func (c *Countdown) ResetForQuestion(limit int) {
	c.mu.Lock()
	c.remaining = limit
	c.selected = nil
	c.submitted = false
	c.mu.Unlock()
}
