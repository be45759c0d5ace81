package domain

import "time"

// Status is the lifecycle state of a live quiz session.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// CanTransition reports whether a session may move from one status to another.
// Legal moves: waiting→active, active⇄paused, active|paused→completed|stopped,
// completed|stopped→waiting (reset).
func CanTransition(from, to Status) bool {
	switch from {
	case StatusWaiting:
		return to == StatusActive
	case StatusActive:
		return to == StatusPaused || to == StatusCompleted || to == StatusStopped
	case StatusPaused:
		return to == StatusActive || to == StatusCompleted || to == StatusStopped
	case StatusCompleted, StatusStopped:
		return to == StatusWaiting
	}
	return false
}

// Question is a single multiple-choice question. Immutable after session
// creation; clients only ever see questions through session snapshots.
type Question struct {
	ID                 string   `json:"id"`
	Prompt             string   `json:"prompt"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
}

// Answer records a participant's submission for one question.
type Answer struct {
	SelectedOption int       `json:"answer"`
	SubmittedAt    time.Time `json:"timestamp"`
}

// Participant is a joined quiz-taker. Answers are keyed by question index;
// a rejoin refreshes identity fields without touching answers or score.
type Participant struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Score    int            `json:"score"`
	Answers  map[int]Answer `json:"answers"`
	IsActive bool           `json:"isActive"`
	JoinedAt time.Time      `json:"joinedAt"`
}

// Session is the authoritative document for one hosted live quiz. Version
// strictly increases on every committed mutation; clients use it to discard
// stale snapshots.
type Session struct {
	ID                   string                  `json:"id"`
	HostID               string                  `json:"hostId"`
	Status               Status                  `json:"status"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	TotalQuestions       int                     `json:"totalQuestions"`
	Questions            []Question              `json:"questions"`
	TimePerQuestion      int                     `json:"timePerQuestion"`
	TimeLeft             int                     `json:"timeLeft"`
	Participants         map[string]*Participant `json:"participants"`
	Version              int64                   `json:"version"`
	CreatedAt            time.Time               `json:"createdAt"`
	StartedAt            *time.Time              `json:"startedAt"`
	PausedAt             *time.Time              `json:"pausedAt"`
	ResumedAt            *time.Time              `json:"resumedAt"`
	StoppedAt            *time.Time              `json:"stoppedAt"`
	CompletedAt          *time.Time              `json:"completedAt"`
	LastStateUpdate      time.Time               `json:"lastStateUpdate"`
}

// NewSession builds a session in the waiting state with an empty roster.
func NewSession(id, hostID string, questions []Question, timePerQuestion int, now time.Time) *Session {
	return &Session{
		ID:              id,
		HostID:          hostID,
		Status:          StatusWaiting,
		TotalQuestions:  len(questions),
		Questions:       questions,
		TimePerQuestion: timePerQuestion,
		TimeLeft:        timePerQuestion,
		Participants:    make(map[string]*Participant),
		Version:         1,
		CreatedAt:       now,
		LastStateUpdate: now,
	}
}

// CurrentQuestion returns the question at the current index, or nil when the
// index is out of range.
func (s *Session) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIndex]
}

// Clone deep-copies the session so stores can hand out race-free snapshots.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		out.Questions[i] = q
		out.Questions[i].Options = append([]string(nil), q.Options...)
	}
	out.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		cp := *p
		cp.Answers = make(map[int]Answer, len(p.Answers))
		for idx, a := range p.Answers {
			cp.Answers[idx] = a
		}
		out.Participants[id] = &cp
	}
	out.StartedAt = cloneTime(s.StartedAt)
	out.PausedAt = cloneTime(s.PausedAt)
	out.ResumedAt = cloneTime(s.ResumedAt)
	out.StoppedAt = cloneTime(s.StoppedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
