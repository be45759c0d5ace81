// Package store defines the session document store contract the live quiz
// service is built against: keyed get/create/patch plus a push subscription
// that delivers full-document snapshots on every committed mutation.
package store

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// Event is one item on a subscription stream: either a fresh full snapshot or
// a delivery failure (document missing, transport error). Delivery is
// at-least-once; consumers reconcile ordering by Session.Version.
type Event struct {
	Session *domain.Session
	Err     error
}

// Store is the document store collaborator. Implementations must bump
// Session.Version by exactly one and stamp LastStateUpdate with the server
// clock on every committed Create/Patch, then fan the new snapshot out to all
// subscribers of that session. Patch values address fields by dotted path
// (see domain.Session.Apply); patches are read-modify-write without locking,
// last write wins.
type Store interface {
	// Get returns a snapshot of the session, or domain.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	// Create stores a new session document under its ID.
	Create(ctx context.Context, session *domain.Session) error
	// Patch applies dotted-path field updates and returns the committed snapshot.
	Patch(ctx context.Context, sessionID string, fields map[string]any) (*domain.Session, error)
	// Subscribe opens a snapshot stream for the session. The returned cancel
	// function must be called to release the subscription; it is safe to call
	// more than once.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
	// Now returns the store's monotonic server-assigned timestamp.
	Now() time.Time
}
