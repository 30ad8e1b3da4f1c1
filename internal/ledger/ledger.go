package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds occurs when an account lacks available balance
	// to cover a requested escrow.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownHold indicates the referenced hold does not exist or has
	// already been released. A hold is released at most once.
	ErrUnknownHold = errors.New("unknown or already released hold")

	// ErrUnknownAccount indicates the referenced account does not exist.
	ErrUnknownAccount = errors.New("unknown account")
)

// Account captures a user's spendable and escrowed balances in cents.
type Account struct {
	Username  string
	Available int64
	Escrowed  int64
}

// Hold ties a fixed amount of a user's balance to one side of a wager.
type Hold struct {
	ID        string
	Username  string
	WagerID   string
	Amount    int64
	CreatedAt time.Time
}

// Ledger is the only component allowed to move money. Every operation
// conserves the sum of available+escrowed across all accounts, except
// Deposit which models an external top-up.
type Ledger interface {
	EnsureAccount(ctx context.Context, username string) error
	Account(ctx context.Context, username string) (Account, error)
	Deposit(ctx context.Context, username string, amount int64) (Account, error)

	// Escrow atomically moves amount from available to escrowed and
	// records a hold against the given wager.
	Escrow(ctx context.Context, username, wagerID string, amount int64) (Hold, error)

	// Release moves a hold's amount out of the holder's escrow into the
	// destination user's available balance. Destination may equal the
	// holder (refund). Returns the released amount.
	Release(ctx context.Context, holdID, destination string) (int64, error)

	// SplitRelease refunds two holds to their original owners in a single
	// atomic step. Used for void outcomes.
	SplitRelease(ctx context.Context, holdA, holdB string) error

	// HoldReleased reports whether the hold has already been paid out.
	// Callers use it to re-drive a release that failed after its wager
	// reached a terminal state.
	HoldReleased(ctx context.Context, holdID string) (bool, error)
}
