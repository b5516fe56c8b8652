package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

const casAttempts = 5

// SessionStore keeps each battle session as a JSON value guarded by optimistic
// concurrency: updates run inside WATCH/MULTI, so a commit succeeds only if no
// concurrent writer touched the key. Committed snapshots are published on a
// per-session channel, which backs Watch across service instances.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	sess.Version = 1
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Update(ctx context.Context, id string, fn store.UpdateFn) (domain.Session, error) {
	key := s.key(id)
	var committed domain.Session

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrSessionNotFound
			}
			if err != nil {
				return err
			}
			var sess domain.Session
			if err := json.Unmarshal(data, &sess); err != nil {
				return err
			}

			if err := fn(&sess); err != nil {
				return err
			}
			sess.Version++

			next, err := json.Marshal(&sess)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			committed = sess
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}

		s.publish(ctx, committed)
		return committed, nil
	}
	return domain.Session{}, domain.ErrConflict
}

func (s *SessionStore) publish(ctx context.Context, sess domain.Session) {
	data, err := json.Marshal(&sess)
	if err != nil {
		return
	}
	// Best effort: a missed notification is recovered by the version check
	// on the next delivery or by resubscribing.
	_ = s.client.Publish(ctx, s.channel(sess.ID), data).Err()
}

func (s *SessionStore) Watch(ctx context.Context, id string) (<-chan domain.Session, func(), error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}

	pubsub := s.client.Subscribe(ctx, s.channel(id))
	// Wait for the subscription to be established before the initial read so
	// no update can slip between snapshot and feed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe session: %w", err)
	}

	initial, err := s.Get(ctx, id)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Session, 8)
	done := make(chan struct{})

	go func() {
		defer close(out)
		last := initial.Version
		deliver(out, initial)

		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var sess domain.Session
				if err := json.Unmarshal([]byte(msg.Payload), &sess); err != nil {
					continue
				}
				if sess.Version <= last {
					continue
				}
				last = sess.Version
				deliver(out, sess)
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
			_ = pubsub.Close()
			close(done)
		})
	}
	return out, cancel, nil
}

// deliver drops a stale snapshot rather than block on a slow consumer; every
// delivery is a full state so only the latest matters.
func deliver(ch chan domain.Session, s domain.Session) {
	select {
	case ch <- s:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (s *SessionStore) key(id string) string {
	return "battle:session:" + id
}

func (s *SessionStore) channel(id string) string {
	return "battle:session:" + id + ":changes"
}
