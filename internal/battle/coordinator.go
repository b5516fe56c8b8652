package battle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

// PresenceChecker exposes the freshness signal the watchdog needs.
type PresenceChecker interface {
	Get(ctx context.Context, userID string) (domain.Presence, error)
}

// Finalizer converts an ended session into persisted scores and achievements.
// Implementations must be idempotent; the coordinator may invoke it from more
// than one path when a forfeit races a timeout.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string) (domain.BattleResult, error)
}

// Coordinator owns every battle session's timers and state transitions. One
// run-loop goroutine per active session decides question expiry, the
// post-answer display delay and presence cancellation; connected clients are
// observers that only submit answers and forfeits.
type Coordinator struct {
	store     store.SessionStore
	presence  PresenceChecker
	finalizer Finalizer
	timings   config.BattleTimings
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    map[string]struct{}
	countdowns map[string]*time.Timer
}

func NewCoordinator(st store.SessionStore, presence PresenceChecker, finalizer Finalizer, timings config.BattleTimings, log *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:      st,
		presence:   presence,
		finalizer:  finalizer,
		timings:    timings,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]struct{}),
		countdowns: make(map[string]*time.Timer),
	}
}

// Stop cancels all run loops and pending countdowns and waits for them.
func (c *Coordinator) Stop() {
	c.cancel()
	c.mu.Lock()
	for id, t := range c.countdowns {
		t.Stop()
		delete(c.countdowns, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// ScheduleStart arms the lobby countdown: at the deadline the session starts
// if it has reached the configured player minimum, otherwise it is cancelled.
func (c *Coordinator) ScheduleStart(sessionID string, at time.Time) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.countdowns[sessionID]; ok {
		return
	}
	c.countdowns[sessionID] = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.countdowns, sessionID)
		c.mu.Unlock()
		c.autoStart(sessionID)
	})
}

func (c *Coordinator) autoStart(sessionID string) {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		c.log.Warn("countdown fired for unknown session", zap.String("session", sessionID), zap.Error(err))
		return
	}
	if s.Status != domain.StatusWaiting {
		return
	}
	if len(s.Players) < c.timings.MinPlayers {
		c.log.Info("countdown expired below player minimum, cancelling",
			zap.String("session", sessionID), zap.Int("players", len(s.Players)))
		if _, err := c.store.Update(ctx, sessionID, Cancel(time.Now())); err != nil && !benign(err) {
			c.log.Warn("cancel under-filled session", zap.String("session", sessionID), zap.Error(err))
		}
		return
	}
	if err := c.StartNow(ctx, sessionID); err != nil && !benign(err) {
		c.log.Warn("countdown auto-start failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// StartNow transitions a waiting session to active and launches its run loop.
// Safe to call concurrently with the countdown; the Waiting precondition
// makes duplicate starts a no-op.
func (c *Coordinator) StartNow(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if t, ok := c.countdowns[sessionID]; ok {
		t.Stop()
		delete(c.countdowns, sessionID)
	}
	c.mu.Unlock()

	_, err := c.store.Update(ctx, sessionID, Start(time.Now(), c.timings.QuestionWindow))
	if err != nil {
		return err
	}
	c.Attach(sessionID)
	return nil
}

// Attach ensures a run loop exists for the session, e.g. after the serving
// process restarts while battles are in flight.
func (c *Coordinator) Attach(sessionID string) {
	c.mu.Lock()
	if _, ok := c.running[sessionID]; ok {
		c.mu.Unlock()
		return
	}
	c.running[sessionID] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(sessionID)
}

// SubmitAnswer scores the option server-side. Wrong answers never touch the
// shared record: the caller gets correct=false and nothing else happens.
// Correct answers race through the store's CAS; losing the race is not an
// error, just won=false.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sessionID, userID string, questionIndex int, optionID string) (correct, won bool, err error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return false, false, err
	}
	if s.Status != domain.StatusActive {
		return false, false, domain.ErrInvalidState
	}
	if questionIndex < 0 || questionIndex >= len(s.Questions) {
		return false, false, nil
	}
	if s.Questions[questionIndex].CorrectOption() != optionID {
		return false, false, nil
	}

	_, err = c.store.Update(ctx, sessionID, RecordAnswer(userID, questionIndex, time.Now()))
	switch {
	case err == nil:
		return true, true, nil
	case errors.Is(err, domain.ErrConflict):
		// Someone else answered first; the subscription shows the winner.
		return true, false, nil
	default:
		return true, false, err
	}
}

// Forfeit concedes the battle for userID and finalizes immediately.
func (c *Coordinator) Forfeit(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	s, err := c.store.Update(ctx, sessionID, Forfeit(userID, time.Now()))
	if err != nil {
		return domain.Session{}, err
	}
	c.finalize(sessionID)
	return s, nil
}

// CancelSession aborts a session without score writes.
func (c *Coordinator) CancelSession(ctx context.Context, sessionID string) error {
	_, err := c.store.Update(ctx, sessionID, Cancel(time.Now()))
	if benign(err) {
		return nil
	}
	return err
}

func (c *Coordinator) runLoop(sessionID string) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.running, sessionID)
		c.mu.Unlock()
	}()

	updates, cancelWatch, err := c.store.Watch(c.ctx, sessionID)
	if err != nil {
		c.log.Warn("watch session", zap.String("session", sessionID), zap.Error(err))
		return
	}
	defer cancelWatch()

	deadline := time.NewTimer(time.Hour)
	defer deadline.Stop()
	watchdog := time.NewTicker(c.timings.PresenceCheckInterval)
	defer watchdog.Stop()

	var cur domain.Session
	rearm := func() {
		if !deadline.Stop() {
			select {
			case <-deadline.C:
			default:
			}
		}
		var at time.Time
		if cur.CurrentAnswer != nil {
			at = cur.CurrentAnswer.AnsweredAt.Add(c.timings.AnswerDelay)
		} else {
			at = cur.QuestionDeadline
		}
		deadline.Reset(time.Until(at))
	}

	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return
			}
			cur = s
			if cur.Status.Terminal() {
				if cur.Status == domain.StatusEnded {
					c.finalize(sessionID)
				}
				return
			}
			if cur.Status == domain.StatusActive {
				rearm()
			}

		case <-deadline.C:
			if cur.Status != domain.StatusActive {
				continue
			}
			c.advance(sessionID)
			// The committed snapshot re-arms the timer; this reset only
			// covers a lost notification.
			deadline.Reset(c.timings.QuestionWindow)

		case <-watchdog.C:
			if cur.Status == domain.StatusActive && c.anyPlayerGone(cur) {
				c.log.Info("player presence dropped, cancelling battle", zap.String("session", sessionID))
				if err := c.CancelSession(c.ctx, sessionID); err != nil {
					c.log.Warn("cancel on presence drop", zap.String("session", sessionID), zap.Error(err))
				}
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) advance(sessionID string) {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	if _, err := c.store.Update(ctx, sessionID, Advance(time.Now(), c.timings.QuestionWindow)); err != nil {
		if benign(err) {
			c.log.Debug("advance resolved by concurrent transition", zap.String("session", sessionID), zap.Error(err))
			return
		}
		c.log.Warn("advance question", zap.String("session", sessionID), zap.Error(err))
	}
}

func (c *Coordinator) finalize(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := c.finalizer.Finalize(ctx, sessionID); err != nil {
		c.log.Error("finalize session", zap.String("session", sessionID), zap.Error(err))
	}
}

func (c *Coordinator) anyPlayerGone(s domain.Session) bool {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	for _, p := range s.Players {
		pr, err := c.presence.Get(ctx, p)
		if err != nil {
			// Unknown presence is not evidence of a drop; only an explicit
			// offline flag or a stale heartbeat counts.
			continue
		}
		if !pr.Online || time.Since(pr.LastSeen) > c.timings.PresenceStaleness {
			return true
		}
	}
	return false
}

// benign reports errors that are expected races resolved by idempotency.
func benign(err error) bool {
	return err == nil || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidState)
}
