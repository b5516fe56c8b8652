package battle

import (
	"time"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/store"
)

// Transitions are pure functions applied through SessionStore.Update. They may
// run more than once against fresh snapshots when an optimistic write loses a
// race, so every precondition is re-checked inside the function.

// Start moves a waiting session into play: the roster freezes, the index
// points at the first question and the answer window opens.
func Start(now time.Time, window time.Duration) store.UpdateFn {
	return func(s *domain.Session) error {
		if s.Status != domain.StatusWaiting {
			return domain.ErrInvalidState
		}
		s.Status = domain.StatusActive
		s.CurrentQuestion = 0
		s.CurrentAnswer = nil
		s.QuestionDeadline = now.Add(window)
		if s.Scores == nil {
			s.Scores = make(map[string]int, len(s.Players))
		}
		for _, p := range s.Players {
			if _, ok := s.Scores[p]; !ok {
				s.Scores[p] = 0
			}
		}
		return nil
	}
}

// Advance settles the current question and moves to the next one. If an
// answer was recorded its winner accrues one point. Past the last question
// the session ends instead; the index never runs beyond the sequence and
// never moves by more than one.
func Advance(now time.Time, window time.Duration) store.UpdateFn {
	return func(s *domain.Session) error {
		if s.Status != domain.StatusActive {
			return domain.ErrInvalidState
		}
		if s.CurrentAnswer != nil {
			s.Scores[s.CurrentAnswer.WinnerID]++
		}
		if s.CurrentQuestion+1 >= len(s.Questions) {
			s.CurrentAnswer = nil
			s.Status = domain.StatusEnded
			s.EndedAt = now
			return nil
		}
		s.CurrentQuestion++
		s.CurrentAnswer = nil
		s.QuestionDeadline = now.Add(window)
		return nil
	}
}

// RecordAnswer resolves "first correct answer wins" for one question. The
// write commits only while the answer slot for questionIndex is still empty;
// a losing writer gets domain.ErrConflict, which callers swallow; the loser
// observes the winner through its subscription.
func RecordAnswer(userID string, questionIndex int, now time.Time) store.UpdateFn {
	return func(s *domain.Session) error {
		if s.Status != domain.StatusActive {
			return domain.ErrInvalidState
		}
		if !s.HasPlayer(userID) {
			return domain.ErrNotParticipant
		}
		if questionIndex != s.CurrentQuestion {
			return domain.ErrConflict
		}
		if s.CurrentAnswer != nil {
			return domain.ErrConflict
		}
		s.CurrentAnswer = &domain.Answer{WinnerID: userID, AnsweredAt: now}
		return nil
	}
}

// Forfeit concedes the battle: every other player is assigned the maximum
// possible score (one point per question) while the caller keeps whatever
// they accrued. Leaving hands full victory to the remaining opponents.
func Forfeit(userID string, now time.Time) store.UpdateFn {
	return func(s *domain.Session) error {
		if s.Status != domain.StatusActive {
			return domain.ErrInvalidState
		}
		if !s.HasPlayer(userID) {
			return domain.ErrNotParticipant
		}
		for _, p := range s.Players {
			if p != userID {
				s.Scores[p] = len(s.Questions)
			}
		}
		s.Status = domain.StatusEnded
		s.EndedBy = userID
		s.EndedAt = now
		s.CurrentAnswer = nil
		return nil
	}
}

// Cancel aborts a session without writing scores, e.g. when a player's
// presence drops or a lobby countdown expires under the player minimum.
func Cancel(now time.Time) store.UpdateFn {
	return func(s *domain.Session) error {
		if s.Status.Terminal() {
			return domain.ErrInvalidState
		}
		s.Status = domain.StatusCancelled
		s.EndedAt = now
		s.CurrentAnswer = nil
		return nil
	}
}

// ClaimResults marks an ended session as finalized. Exactly one caller wins
// the claim; the rest see domain.ErrConflict and skip their external writes,
// which keeps re-finalization from double-counting scores or achievements.
func ClaimResults() store.UpdateFn {
	return func(s *domain.Session) error {
		if s.Status != domain.StatusEnded {
			return domain.ErrInvalidState
		}
		if s.ResultsRecorded {
			return domain.ErrConflict
		}
		s.ResultsRecorded = true
		return nil
	}
}
