package wager

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the wager does not exist.
	ErrNotFound = errors.New("wager not found")

	// ErrAlreadyMatched is returned to the loser of an acceptance race or
	// to any accept attempt on a matched wager.
	ErrAlreadyMatched = errors.New("wager already matched")

	// ErrInvalidTransition indicates the requested state change is not
	// permitted from the wager's current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Store is the durable record of wagers. Transitions are compare-and-swap
// on the current state so concurrent accept/cancel/settle attempts cannot
// corrupt the state machine: the first writer to observe an allowed state
// wins and every other writer fails.
type Store interface {
	Create(ctx context.Context, w Wager) error
	Get(ctx context.Context, id string) (Wager, error)

	// ListByUser returns wagers where the user is creator or counter-party,
	// optionally filtered to one state (nil means all).
	ListByUser(ctx context.Context, username string, state *State) ([]Wager, error)

	// ListOpenExcluding returns public open wagers not created by the user.
	ListOpenExcluding(ctx context.Context, username string) ([]Wager, error)

	// ListInState returns every wager currently in the given state.
	ListInState(ctx context.Context, state State) ([]Wager, error)

	// Accept transitions an unmatched wager to accepted, recording the
	// acceptor and their hold. Fails with ErrAlreadyMatched when the wager
	// is no longer open/pending, ErrInvalidTransition from terminal states.
	Accept(ctx context.Context, id, acceptor, holdID string) (Wager, error)

	// Terminate performs a CAS transition into a terminal state with its
	// outcome. from lists the states the transition is allowed from.
	Terminate(ctx context.Context, id string, to State, outcome Outcome, from ...State) (Wager, error)
}
