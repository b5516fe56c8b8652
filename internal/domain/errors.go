package domain

import "errors"

var (
	// ErrConflict is returned when a CAS precondition no longer holds at
	// commit time. Expected under concurrency; callers retry or no-op.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrInvalidState is returned for operations against the wrong status,
	// e.g. joining an active session or accepting a rejected invitation.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSessionFull is returned when a join would exceed the player limit.
	ErrSessionFull = errors.New("session is full")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvitationNotFound is returned when an invitation id is unknown.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrPresenceNotFound is returned when a user has no presence record yet.
	ErrPresenceNotFound = errors.New("presence record not found")
	// ErrNotEnoughQuestions indicates the bank has fewer questions than asked.
	ErrNotEnoughQuestions = errors.New("not enough questions available")
	// ErrNotParticipant is returned when a user acts on a session they never joined.
	ErrNotParticipant = errors.New("user is not a session participant")
)
