package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/store"
)

// DocumentStore keeps session documents as JSON values in Redis and fans out
// snapshots through pub/sub, one channel per session. Patches are plain
// read-modify-write (GET, apply, SET, PUBLISH) without locking: write
// concurrency per document is low (one host, one timer loop, participants
// touching only their own sub-fields) and last write wins.
type DocumentStore struct {
	client *redis.Client
	clock  clockwork.Clock
	ttl    time.Duration

	// Guards the version bump between read and write within this process.
	mu sync.Mutex
}

func NewDocumentStore(client *redis.Client, clock clockwork.Clock, ttl time.Duration) *DocumentStore {
	return &DocumentStore{client: client, clock: clock, ttl: ttl}
}

func (s *DocumentStore) Now() time.Time {
	return s.clock.Now()
}

func (s *DocumentStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *DocumentStore) Create(ctx context.Context, session *domain.Session) error {
	doc := session.Clone()
	doc.LastStateUpdate = s.clock.Now()
	return s.commit(ctx, doc)
}

func (s *DocumentStore) Patch(ctx context.Context, sessionID string, fields map[string]any) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for path, value := range fields {
		if err := session.Apply(path, value); err != nil {
			return nil, err
		}
	}
	session.Version++
	session.LastStateUpdate = s.clock.Now()
	if err := s.commit(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *DocumentStore) commit(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(session.ID), raw, s.ttl)
	pipe.Publish(ctx, s.channel(session.ID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *DocumentStore) Subscribe(ctx context.Context, sessionID string) (<-chan store.Event, func(), error) {
	initial, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	pubsub := s.client.Subscribe(ctx, s.channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe session: %w", err)
	}

	ch := make(chan store.Event, 8)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	ch <- store.Event{Session: initial}

	go func() {
		defer close(ch)
		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					select {
					case <-done:
					default:
						// Transport dropped out from under us; let the
						// consumer run its reconnect path.
						ch <- store.Event{Err: domain.ErrConnectivityLost}
					}
					return
				}
				var session domain.Session
				if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
					ch <- store.Event{Err: fmt.Errorf("decode snapshot: %w", err)}
					continue
				}
				select {
				case ch <- store.Event{Session: &session}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	return ch, cancel, nil
}

func (s *DocumentStore) key(sessionID string) string {
	return "live_quiz:" + sessionID
}

func (s *DocumentStore) channel(sessionID string) string {
	return "live_quiz:updates:" + sessionID
}
