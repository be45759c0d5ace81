package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Apply mutates the session according to a dotted field path, mirroring the
// partial-update contract of the document store (e.g. "participants.<id>.score").
// Unknown paths or mismatched value types are errors; Version and
// LastStateUpdate are owned by the store and cannot be patched directly.
func (s *Session) Apply(path string, value any) error {
	parts := strings.Split(path, ".")
	switch parts[0] {
	case "status":
		st, ok := value.(Status)
		if !ok {
			raw, ok := value.(string)
			if !ok {
				return patchTypeError(path, value)
			}
			st = Status(raw)
		}
		s.Status = st
		return nil
	case "currentQuestionIndex":
		n, ok := asInt(value)
		if !ok {
			return patchTypeError(path, value)
		}
		s.CurrentQuestionIndex = n
		return nil
	case "timeLeft":
		n, ok := asInt(value)
		if !ok {
			return patchTypeError(path, value)
		}
		if n < 0 {
			n = 0
		}
		s.TimeLeft = n
		return nil
	case "startedAt":
		return setTimestamp(&s.StartedAt, path, value)
	case "pausedAt":
		return setTimestamp(&s.PausedAt, path, value)
	case "resumedAt":
		return setTimestamp(&s.ResumedAt, path, value)
	case "stoppedAt":
		return setTimestamp(&s.StoppedAt, path, value)
	case "completedAt":
		return setTimestamp(&s.CompletedAt, path, value)
	case "participants":
		return s.applyParticipantPath(parts, path, value)
	}
	return fmt.Errorf("unknown patch path %q", path)
}

func (s *Session) applyParticipantPath(parts []string, path string, value any) error {
	if len(parts) == 1 {
		// Whole-roster replace; nil clears everyone (reset).
		if value == nil {
			s.Participants = make(map[string]*Participant)
			return nil
		}
		roster, ok := value.(map[string]*Participant)
		if !ok {
			return patchTypeError(path, value)
		}
		s.Participants = roster
		return nil
	}

	id := parts[1]
	if len(parts) == 2 {
		p, ok := value.(*Participant)
		if !ok {
			return patchTypeError(path, value)
		}
		if p.Answers == nil {
			p.Answers = make(map[int]Answer)
		}
		if s.Participants == nil {
			s.Participants = make(map[string]*Participant)
		}
		s.Participants[id] = p
		return nil
	}

	p, ok := s.Participants[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
	}

	switch parts[2] {
	case "name":
		name, ok := value.(string)
		if !ok {
			return patchTypeError(path, value)
		}
		p.Name = name
		return nil
	case "isActive":
		active, ok := value.(bool)
		if !ok {
			return patchTypeError(path, value)
		}
		p.IsActive = active
		return nil
	case "score":
		n, ok := asInt(value)
		if !ok {
			return patchTypeError(path, value)
		}
		p.Score = n
		return nil
	case "answers":
		if len(parts) != 4 {
			return fmt.Errorf("unknown patch path %q", path)
		}
		idx, err := strconv.Atoi(parts[3])
		if err != nil {
			return fmt.Errorf("bad question index in patch path %q", path)
		}
		ans, ok := value.(Answer)
		if !ok {
			return patchTypeError(path, value)
		}
		if p.Answers == nil {
			p.Answers = make(map[int]Answer)
		}
		// Overwrite semantics: the last submission for a question index wins.
		p.Answers[idx] = ans
		return nil
	}
	return fmt.Errorf("unknown patch path %q", path)
}

func setTimestamp(dst **time.Time, path string, value any) error {
	if value == nil {
		*dst = nil
		return nil
	}
	switch t := value.(type) {
	case time.Time:
		*dst = &t
		return nil
	case *time.Time:
		*dst = t
		return nil
	}
	return patchTypeError(path, value)
}

func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func patchTypeError(path string, value any) error {
	return fmt.Errorf("patch path %q: unsupported value type %T", path, value)
}
