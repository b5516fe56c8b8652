package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
	redisinfra "quiz-battle-service/internal/infra/redis"
)

func newClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedRedisSession(t *testing.T, s *redisinfra.SessionStore) domain.Session {
	t.Helper()
	sess := domain.Session{
		ID:      "s1",
		Status:  domain.StatusWaiting,
		Players: []string{"a"},
		Scores:  map[string]int{"a": 0},
	}
	if err := s.Create(context.Background(), &sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	return sess
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := redisinfra.NewSessionStore(newClient(t), time.Hour)
	seedRedisSession(t, s)

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.Status != domain.StatusWaiting || got.Scores["a"] != 0 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreUpdateIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	s := redisinfra.NewSessionStore(newClient(t), time.Hour)
	seedRedisSession(t, s)

	updated, err := s.Update(ctx, "s1", func(sess *domain.Session) error {
		sess.Players = append(sess.Players, "b")
		sess.Scores["b"] = 0
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || len(updated.Players) != 2 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	got, _ := s.Get(ctx, "s1")
	if got.Version != 2 {
		t.Fatalf("update not committed: %+v", got)
	}
}

func TestSessionStoreUpdatePropagatesPreconditionError(t *testing.T) {
	ctx := context.Background()
	s := redisinfra.NewSessionStore(newClient(t), time.Hour)
	seedRedisSession(t, s)

	_, err := s.Update(ctx, "s1", func(sess *domain.Session) error {
		sess.Status = domain.StatusActive
		return domain.ErrInvalidState
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	got, _ := s.Get(ctx, "s1")
	if got.Status != domain.StatusWaiting || got.Version != 1 {
		t.Fatalf("aborted update leaked: %+v", got)
	}
}

func TestSessionStoreWatchDeliversInitialAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := redisinfra.NewSessionStore(newClient(t), time.Hour)
	seedRedisSession(t, s)

	ch, cancel, err := s.Watch(ctx, "s1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	select {
	case initial := <-ch:
		if initial.Version != 1 {
			t.Fatalf("expected initial snapshot, got %+v", initial)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, err := s.Update(ctx, "s1", func(sess *domain.Session) error {
		sess.Status = domain.StatusActive
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case got := <-ch:
		if got.Status != domain.StatusActive || got.Version != 2 {
			t.Fatalf("unexpected delivery: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestSessionStoreWatchUnknownSession(t *testing.T) {
	s := redisinfra.NewSessionStore(newClient(t), time.Hour)
	if _, _, err := s.Watch(context.Background(), "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
