package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

// Bridge fans session-state changes out to subscribed clients. Every delivery
// is the full session value, never a diff: a reconnecting client resubscribes
// and recomputes its view from the first snapshot. After a terminal snapshot
// (Ended or Cancelled) is delivered the channel closes, which propagates
// cancellation to every subscriber.
type Bridge struct {
	sessions store.SessionStore
	log      *zap.Logger
}

func NewBridge(sessions store.SessionStore, log *zap.Logger) *Bridge {
	return &Bridge{sessions: sessions, log: log}
}

// Subscribe delivers the current session state followed by every change until
// the session terminates or the caller cancels. The cancel func is safe to
// call more than once.
func (b *Bridge) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Session, func(), error) {
	updates, cancelWatch, err := b.sessions.Watch(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan domain.Session, 8)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case s, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
				if s.Status.Terminal() {
					// Subscribers have seen the final state; stop the feed.
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelWatch()
			close(done)
		})
	}
	return out, cancel, nil
}
