package wager

import "time"

// State enumerates the wager lifecycle.
type State string

const (
	// StateOpen is an unmatched wager anyone (except the creator) may accept.
	StateOpen State = "open"
	// StatePending is an unmatched wager directed at a named counter-party.
	StatePending State = "pending"
	// StateAccepted has both sides escrowed and awaits a grade.
	StateAccepted State = "accepted"
	// StateWon means the grade fell inside the creator's interval.
	StateWon State = "won"
	// StateLost means the grade fell outside the creator's interval.
	StateLost State = "lost"
	// StateVoid means settlement could not produce a grade; both sides refunded.
	StateVoid State = "void"
	// StateCancelled is a creator cancellation before any acceptance.
	StateCancelled State = "cancelled"
	// StateExpired is an unmatched wager past its expiration time.
	StateExpired State = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateWon, StateLost, StateVoid, StateCancelled, StateExpired:
		return true
	}
	return false
}

// ParseState maps a route parameter onto a known state.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateOpen, StatePending, StateAccepted, StateWon, StateLost, StateVoid, StateCancelled, StateExpired:
		return State(s), true
	}
	return "", false
}

// Visibility controls whether an open wager is listed publicly.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Outcome is the immutable settlement record attached to a terminal wager.
type Outcome struct {
	Winner    string    // empty for void/cancelled/expired
	Grade     float64   // observed percentage, only meaningful for won/lost
	Reason    string    // e.g. "grade available", "oracle permanent error"
	DecidedAt time.Time
}

// Wager is a two-sided bet that an assessment's percentage score lands in
// [Lower, Upper]. The creator wins on interval membership; the acceptor
// wins otherwise. Both sides risk the same stake.
type Wager struct {
	ID           string
	Creator      string
	CounterParty string // empty until accepted; pre-set for directed wagers
	Visibility   Visibility

	CourseCode string
	Term       string
	Assessment string

	Lower float64
	Upper float64

	StakeCents int64
	Note       string

	State   State
	Outcome *Outcome

	CreatorHoldID  string
	AcceptorHoldID string

	CreatedAt  time.Time
	ExpiresAt  *time.Time
	AcceptedAt *time.Time
}

// InInterval reports whether a grade settles in the creator's favor.
func (w Wager) InInterval(grade float64) bool {
	return grade >= w.Lower && grade <= w.Upper
}

// Expired reports whether an unmatched wager is past its expiration.
func (w Wager) Expired(now time.Time) bool {
	if w.ExpiresAt == nil {
		return false
	}
	if w.State != StateOpen && w.State != StatePending {
		return false
	}
	return now.After(*w.ExpiresAt)
}
