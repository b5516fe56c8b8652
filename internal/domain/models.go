package domain

import "time"

// SessionStatus tracks the battle lifecycle. Transitions are one-directional:
// Waiting -> Active -> Ended, or {Waiting,Active} -> Cancelled.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Answer records the first correct answer for the current question.
// At most one per question; later writers lose the CAS.
type Answer struct {
	WinnerID   string    `json:"winnerId"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Session is the aggregate root of one multiplayer battle. The record is the
// single source of truth; clients recompute their view from full snapshots.
type Session struct {
	ID         string        `json:"id"`
	Status     SessionStatus `json:"status"`
	Players    []string      `json:"players"`
	MaxPlayers int           `json:"maxPlayers"`
	Questions  []Question    `json:"questions"`

	CurrentQuestion int     `json:"currentQuestion"`
	CurrentAnswer   *Answer `json:"currentAnswer,omitempty"`

	// Absolute deadlines set by the coordinator; clients render countdowns
	// but never decide expiry.
	CountdownEnds    time.Time `json:"countdownEnds,omitempty"`
	QuestionDeadline time.Time `json:"questionDeadline,omitempty"`

	Scores map[string]int `json:"scores"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	EndedBy   string    `json:"endedBy,omitempty"`
	EndedAt   time.Time `json:"endedAt,omitempty"`

	// ResultsRecorded is CAS-claimed by the finalizer so external score and
	// achievement writes happen exactly once per session.
	ResultsRecorded bool `json:"resultsRecorded"`

	// Version is the optimistic-concurrency counter, incremented on every
	// committed update.
	Version int64 `json:"version"`
}

// HasPlayer reports whether userID is part of the session roster.
func (s *Session) HasPlayer(userID string) bool {
	for _, p := range s.Players {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without racing snapshots.
func (s *Session) Clone() Session {
	out := *s
	out.Players = append([]string(nil), s.Players...)
	out.Questions = append([]Question(nil), s.Questions...)
	if s.CurrentAnswer != nil {
		a := *s.CurrentAnswer
		out.CurrentAnswer = &a
	}
	out.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	return out
}

// InvitationStatus tracks a direct-invite handshake.
type InvitationStatus string

const (
	InvitePending  InvitationStatus = "pending"
	InviteAccepted InvitationStatus = "accepted"
	InviteRejected InvitationStatus = "rejected"
)

// Invitation links an inviter and invitee; SessionID is set once accepted.
type Invitation struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"senderId"`
	ReceiverID string           `json:"receiverId"`
	Status     InvitationStatus `json:"status"`
	SessionID  string           `json:"sessionId,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Options    []Option `json:"options"`
}

// CorrectOption returns the id of the correct option, or "" if none is marked.
func (q Question) CorrectOption() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// Presence is a player's online signal with a freshness timestamp. Records
// whose LastSeen is older than the staleness window are treated as offline
// regardless of the stored flag.
type Presence struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
}

// PlayerStats is a persistent per-user scoreboard row.
type PlayerStats struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
	Wins   int    `json:"wins"`
	Played int    `json:"played"`
}

// PlayerResult is one row of a finalized battle ranking.
type PlayerResult struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
	Winner bool   `json:"winner"`
}

// BattleResult is the outcome of finalizing an ended session.
type BattleResult struct {
	SessionID string         `json:"sessionId"`
	Rankings  []PlayerResult `json:"rankings"`
	EndedAt   time.Time      `json:"endedAt"`
}

// Achievement names unlocked by the finalizer.
const (
	AchievementBattleWinner = "battle_winner"
	AchievementPerfectScore = "perfect_score"
)
