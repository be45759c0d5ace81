package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/store"
)

// DocumentStore is the in-memory implementation of store.Store. It is the
// default single-process backend and doubles as the fake the state machine is
// tested against.
type DocumentStore struct {
	clock clockwork.Clock

	mu          sync.RWMutex
	sessions    map[string]*domain.Session
	subscribers map[string]map[chan store.Event]struct{}
}

func NewDocumentStore(clock clockwork.Clock) *DocumentStore {
	return &DocumentStore{
		clock:       clock,
		sessions:    make(map[string]*domain.Session),
		subscribers: make(map[string]map[chan store.Event]struct{}),
	}
}

func (s *DocumentStore) Now() time.Time {
	return s.clock.Now()
}

func (s *DocumentStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *DocumentStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := session.Clone()
	doc.LastStateUpdate = s.clock.Now()
	s.sessions[doc.ID] = doc
	s.broadcastLocked(doc)
	return nil
}

func (s *DocumentStore) Patch(_ context.Context, sessionID string, fields map[string]any) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Apply to a copy so a failed patch leaves the document untouched.
	updated := session.Clone()
	for path, value := range fields {
		if err := updated.Apply(path, value); err != nil {
			return nil, err
		}
	}
	updated.Version++
	updated.LastStateUpdate = s.clock.Now()
	s.sessions[sessionID] = updated
	s.broadcastLocked(updated)
	return updated.Clone(), nil
}

func (s *DocumentStore) Subscribe(_ context.Context, sessionID string) (<-chan store.Event, func(), error) {
	ch := make(chan store.Event, 8)

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrSessionNotFound
	}
	subs, ok := s.subscribers[sessionID]
	if !ok {
		subs = make(map[chan store.Event]struct{})
		s.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	initial := session.Clone()
	s.mu.Unlock()

	ch <- store.Event{Session: initial}

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(s.subscribers, sessionID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *DocumentStore) broadcastLocked(session *domain.Session) {
	subs := s.subscribers[session.ID]
	if len(subs) == 0 {
		return
	}
	snapshot := session.Clone()
	for ch := range subs {
		select {
		case ch <- store.Event{Session: snapshot}:
		default:
			// Drop the oldest queued snapshot so a slow subscriber never
			// blocks the fan-out; versioning lets it catch up.
			select {
			case <-ch:
			default:
			}
			ch <- store.Event{Session: snapshot}
		}
	}
}
