package domain

import (
	"errors"
	"testing"
	"time"
)

func testSession() *Session {
	questions := []Question{
		{ID: "q1", Prompt: "one", Options: []string{"a", "b"}, CorrectOptionIndex: 0},
		{ID: "q2", Prompt: "two", Options: []string{"c", "d"}, CorrectOptionIndex: 1},
	}
	return NewSession("quiz_1_abc", "host-1", questions, 45, time.Unix(1700000000, 0))
}

func TestApplyScalarFields(t *testing.T) {
	s := testSession()

	if err := s.Apply("status", StatusActive); err != nil {
		t.Fatalf("status patch failed: %v", err)
	}
	if s.Status != StatusActive {
		t.Fatalf("status = %q, want active", s.Status)
	}

	if err := s.Apply("status", "paused"); err != nil {
		t.Fatalf("string status patch failed: %v", err)
	}
	if s.Status != StatusPaused {
		t.Fatalf("status = %q, want paused", s.Status)
	}

	if err := s.Apply("currentQuestionIndex", 1); err != nil {
		t.Fatalf("index patch failed: %v", err)
	}
	if s.CurrentQuestionIndex != 1 {
		t.Fatalf("index = %d, want 1", s.CurrentQuestionIndex)
	}

	// JSON-decoded numbers arrive as float64.
	if err := s.Apply("timeLeft", float64(30)); err != nil {
		t.Fatalf("timeLeft patch failed: %v", err)
	}
	if s.TimeLeft != 30 {
		t.Fatalf("timeLeft = %d, want 30", s.TimeLeft)
	}

	if err := s.Apply("timeLeft", -5); err != nil {
		t.Fatalf("negative timeLeft patch failed: %v", err)
	}
	if s.TimeLeft != 0 {
		t.Fatalf("timeLeft = %d, want floor at 0", s.TimeLeft)
	}
}

func TestApplyTimestamps(t *testing.T) {
	s := testSession()
	now := time.Unix(1700000100, 0)

	if err := s.Apply("startedAt", now); err != nil {
		t.Fatalf("startedAt patch failed: %v", err)
	}
	if s.StartedAt == nil || !s.StartedAt.Equal(now) {
		t.Fatalf("startedAt = %v, want %v", s.StartedAt, now)
	}

	if err := s.Apply("startedAt", nil); err != nil {
		t.Fatalf("clearing startedAt failed: %v", err)
	}
	if s.StartedAt != nil {
		t.Fatalf("startedAt should be cleared, got %v", s.StartedAt)
	}
}

func TestApplyParticipantPaths(t *testing.T) {
	s := testSession()
	joined := time.Unix(1700000050, 0)

	p := &Participant{ID: "user_1_x", Name: "Ada", IsActive: true, JoinedAt: joined}
	if err := s.Apply("participants.user_1_x", p); err != nil {
		t.Fatalf("participant upsert failed: %v", err)
	}
	got := s.Participants["user_1_x"]
	if got == nil || got.Name != "Ada" {
		t.Fatalf("participant not stored: %+v", got)
	}
	if got.Answers == nil {
		t.Fatalf("answers map should be initialized on upsert")
	}

	if err := s.Apply("participants.user_1_x.score", 3); err != nil {
		t.Fatalf("score patch failed: %v", err)
	}
	if got.Score != 3 {
		t.Fatalf("score = %d, want 3", got.Score)
	}

	if err := s.Apply("participants.user_1_x.isActive", false); err != nil {
		t.Fatalf("isActive patch failed: %v", err)
	}
	if got.IsActive {
		t.Fatalf("participant should be inactive")
	}

	ans := Answer{SelectedOption: 1, SubmittedAt: joined}
	if err := s.Apply("participants.user_1_x.answers.0", ans); err != nil {
		t.Fatalf("answer patch failed: %v", err)
	}
	if got.Answers[0] != ans {
		t.Fatalf("answer not recorded: %+v", got.Answers)
	}

	// A second submission for the same question overwrites the first.
	later := Answer{SelectedOption: 0, SubmittedAt: joined.Add(2 * time.Second)}
	if err := s.Apply("participants.user_1_x.answers.0", later); err != nil {
		t.Fatalf("answer overwrite failed: %v", err)
	}
	if got.Answers[0] != later {
		t.Fatalf("overwrite did not win: %+v", got.Answers[0])
	}

	if err := s.Apply("participants.user_missing.score", 1); !errors.Is(err, ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestApplyRosterClear(t *testing.T) {
	s := testSession()
	s.Participants["user_1_x"] = &Participant{ID: "user_1_x", Name: "Ada"}

	if err := s.Apply("participants", nil); err != nil {
		t.Fatalf("roster clear failed: %v", err)
	}
	if len(s.Participants) != 0 {
		t.Fatalf("roster should be empty, got %d entries", len(s.Participants))
	}
	if s.Participants == nil {
		t.Fatalf("roster map should be re-initialized, not nil")
	}
}

func TestApplyRejectsUnknownPathsAndTypes(t *testing.T) {
	s := testSession()
	if err := s.Apply("version", 7); err == nil {
		t.Fatalf("version must not be patchable")
	}
	if err := s.Apply("lastStateUpdate", time.Now()); err == nil {
		t.Fatalf("lastStateUpdate must not be patchable")
	}
	if err := s.Apply("timeLeft", "thirty"); err == nil {
		t.Fatalf("string timeLeft should be rejected")
	}
	if err := s.Apply("participants.user_x.answers.not-a-number", Answer{}); err == nil {
		t.Fatalf("non-numeric answer index should be rejected")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := testSession()
	s.Participants["user_1_x"] = &Participant{
		ID:      "user_1_x",
		Name:    "Ada",
		Answers: map[int]Answer{0: {SelectedOption: 1}},
	}

	cp := s.Clone()
	cp.Participants["user_1_x"].Score = 99
	cp.Participants["user_1_x"].Answers[1] = Answer{SelectedOption: 0}
	cp.Questions[0].Options[0] = "mutated"

	if s.Participants["user_1_x"].Score != 0 {
		t.Fatalf("clone shared participant struct")
	}
	if len(s.Participants["user_1_x"].Answers) != 1 {
		t.Fatalf("clone shared answers map")
	}
	if s.Questions[0].Options[0] != "a" {
		t.Fatalf("clone shared options slice")
	}
}

func TestCanTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusWaiting, StatusActive},
		{StatusActive, StatusPaused},
		{StatusPaused, StatusActive},
		{StatusActive, StatusCompleted},
		{StatusPaused, StatusStopped},
		{StatusCompleted, StatusWaiting},
		{StatusStopped, StatusWaiting},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}
	forbidden := []struct{ from, to Status }{
		{StatusWaiting, StatusPaused},
		{StatusWaiting, StatusCompleted},
		{StatusCompleted, StatusActive},
		{StatusStopped, StatusPaused},
		{StatusActive, StatusWaiting},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be rejected", tc.from, tc.to)
		}
	}
}
