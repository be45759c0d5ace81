package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/store"
)

func newTestSession(id string) *domain.Session {
	questions := []domain.Question{
		{ID: "q1", Prompt: "one", Options: []string{"a", "b"}, CorrectOptionIndex: 0},
	}
	return domain.NewSession(id, "host-1", questions, 45, time.Unix(1700000000, 0))
}

func TestCreateAndGetRoundtrip(t *testing.T) {
	s := NewDocumentStore(clockwork.NewFakeClock())
	ctx := context.Background()

	if err := s.Create(ctx, newTestSession("quiz_1_abc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	got, err := s.Get(ctx, "quiz_1_abc")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != domain.StatusWaiting || got.Version != 1 {
		t.Fatalf("unexpected session: status=%s version=%d", got.Status, got.Version)
	}

	// Mutating the returned snapshot must not touch the stored document.
	got.Status = domain.StatusActive
	again, err := s.Get(ctx, "quiz_1_abc")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again.Status != domain.StatusWaiting {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestGetMissingSession(t *testing.T) {
	s := NewDocumentStore(clockwork.NewFakeClock())
	if _, err := s.Get(context.Background(), "quiz_none"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := s.Patch(context.Background(), "quiz_none", map[string]any{"timeLeft": 10}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("patch on missing session: expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := s.Subscribe(context.Background(), "quiz_none"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("subscribe on missing session: expected ErrSessionNotFound, got %v", err)
	}
}

func TestPatchBumpsVersionAndStampsUpdate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewDocumentStore(clock)
	ctx := context.Background()

	if err := s.Create(ctx, newTestSession("quiz_1_abc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	clock.Advance(time.Second)
	first, err := s.Patch(ctx, "quiz_1_abc", map[string]any{"timeLeft": 30})
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("version = %d, want 2", first.Version)
	}
	if !first.LastStateUpdate.Equal(clock.Now()) {
		t.Fatalf("lastStateUpdate not stamped: %v", first.LastStateUpdate)
	}

	second, err := s.Patch(ctx, "quiz_1_abc", map[string]any{
		"status":    domain.StatusActive,
		"startedAt": clock.Now(),
	})
	if err != nil {
		t.Fatalf("second patch failed: %v", err)
	}
	if second.Version != 3 {
		t.Fatalf("version = %d, want strictly increasing to 3", second.Version)
	}
	if second.Status != domain.StatusActive || second.StartedAt == nil {
		t.Fatalf("multi-field patch incomplete: %+v", second)
	}
}

func TestSubscribeDeliversInitialAndUpdates(t *testing.T) {
	s := NewDocumentStore(clockwork.NewFakeClock())
	ctx := context.Background()

	if err := s.Create(ctx, newTestSession("quiz_1_abc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	events, cancel, err := s.Subscribe(ctx, "quiz_1_abc")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	initial := <-events
	if initial.Err != nil || initial.Session.Version != 1 {
		t.Fatalf("unexpected initial event: %+v", initial)
	}

	if _, err := s.Patch(ctx, "quiz_1_abc", map[string]any{"timeLeft": 10}); err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	update := <-events
	if update.Session.TimeLeft != 10 || update.Session.Version != 2 {
		t.Fatalf("unexpected update event: %+v", update.Session)
	}
}

func TestSubscribeFanOutToMultipleSubscribers(t *testing.T) {
	s := NewDocumentStore(clockwork.NewFakeClock())
	ctx := context.Background()

	if err := s.Create(ctx, newTestSession("quiz_1_abc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	chans := make([]<-chan store.Event, 0, 3)
	for i := 0; i < 3; i++ {
		events, cancel, err := s.Subscribe(ctx, "quiz_1_abc")
		if err != nil {
			t.Fatalf("subscribe %d failed: %v", i, err)
		}
		defer cancel()
		<-events // initial snapshot
		chans = append(chans, events)
	}

	if _, err := s.Patch(ctx, "quiz_1_abc", map[string]any{"currentQuestionIndex": 1}); err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	for i, events := range chans {
		ev := <-events
		if ev.Session.CurrentQuestionIndex != 1 {
			t.Fatalf("subscriber %d saw index %d", i, ev.Session.CurrentQuestionIndex)
		}
	}
}

func TestSlowSubscriberDropsOldestNotNewest(t *testing.T) {
	s := NewDocumentStore(clockwork.NewFakeClock())
	ctx := context.Background()

	if err := s.Create(ctx, newTestSession("quiz_1_abc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	events, cancel, err := s.Subscribe(ctx, "quiz_1_abc")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	// Never read; overflow the buffer so the drop policy kicks in.
	for i := 1; i <= 20; i++ {
		if _, err := s.Patch(ctx, "quiz_1_abc", map[string]any{"timeLeft": 45 - i}); err != nil {
			t.Fatalf("patch %d failed: %v", i, err)
		}
	}

	var last store.Event
	for {
		select {
		case ev := <-events:
			last = ev
		default:
			if last.Session == nil {
				t.Fatalf("no events delivered")
			}
			if last.Session.TimeLeft != 25 {
				t.Fatalf("newest snapshot lost: timeLeft=%d, want 25", last.Session.TimeLeft)
			}
			return
		}
	}
}

func TestCancelClosesChannelOnce(t *testing.T) {
	s := NewDocumentStore(clockwork.NewFakeClock())
	ctx := context.Background()

	if err := s.Create(ctx, newTestSession("quiz_1_abc")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	events, cancel, err := s.Subscribe(ctx, "quiz_1_abc")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	<-events
	cancel()
	cancel() // second call must be a no-op

	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed after cancel")
	}

	// Patches after cancel must not panic on the closed channel.
	if _, err := s.Patch(ctx, "quiz_1_abc", map[string]any{"timeLeft": 5}); err != nil {
		t.Fatalf("patch after cancel failed: %v", err)
	}
}
