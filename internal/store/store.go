package store

import (
	"context"

	"quiz-battle-service/internal/domain"
)

// UpdateFn mutates a session snapshot in place. It may be re-applied against a
// fresh snapshot when the optimistic write loses a race, so it must be pure:
// no side effects beyond the passed session. Returning an error aborts the
// update and propagates unchanged to the caller.
type UpdateFn func(s *domain.Session) error

// SessionStore is the durable shared state for battle sessions. All
// cross-client coordination flows through it; no mutation may assume it is
// the sole writer.
type SessionStore interface {
	// Create persists a new session record. The store assigns Version 1.
	Create(ctx context.Context, s *domain.Session) error

	// Get returns a snapshot of the session, or domain.ErrSessionNotFound.
	Get(ctx context.Context, id string) (domain.Session, error)

	// Update applies fn under optimistic concurrency: load, apply, commit
	// only if the version is unchanged. The fn is retried on a fresh
	// snapshot a bounded number of times; domain.ErrConflict is returned
	// when retries are exhausted.
	Update(ctx context.Context, id string, fn UpdateFn) (domain.Session, error)

	// Watch delivers a full session snapshot on every committed change,
	// starting with the current state. The returned cancel func releases
	// the subscription; the channel closes on cancel or store shutdown.
	Watch(ctx context.Context, id string) (<-chan domain.Session, func(), error)
}
