package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists accounts and escrow holds in PostgreSQL. Row
// locks on accounts serialize balance mutation per user; the holds table
// carries a released flag so a hold can be paid out at most once.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account row exists for the username.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, username string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (username, available, escrowed)
        VALUES ($1, 0, 0) ON CONFLICT (username) DO NOTHING`, username)
	return err
}

// Account returns the current balances for the username.
func (l *PostgresLedger) Account(ctx context.Context, username string) (Account, error) {
	row := l.db.QueryRow(ctx, `SELECT username, available, escrowed FROM accounts WHERE username = $1`, username)
	var acct Account
	if err := row.Scan(&acct.Username, &acct.Available, &acct.Escrowed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrUnknownAccount
		}
		return Account{}, err
	}
	return acct, nil
}

// Deposit credits an external top-up to the user's available balance.
func (l *PostgresLedger) Deposit(ctx context.Context, username string, amount int64) (Account, error) {
	if amount <= 0 {
		return Account{}, fmt.Errorf("amount must be positive")
	}
	row := l.db.QueryRow(ctx, `UPDATE accounts SET available = available + $1
        WHERE username = $2 RETURNING username, available, escrowed`, amount, username)
	var acct Account
	if err := row.Scan(&acct.Username, &acct.Available, &acct.Escrowed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrUnknownAccount
		}
		return Account{}, err
	}
	return acct, nil
}

// Escrow moves amount from available to escrowed and records a hold.
func (l *PostgresLedger) Escrow(ctx context.Context, username, wagerID string, amount int64) (Hold, error) {
	if amount <= 0 {
		return Hold{}, fmt.Errorf("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Hold{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	acct, err := lockAccount(ctx, tx, username)
	if err != nil {
		return Hold{}, err
	}
	if acct.Available < amount {
		return Hold{}, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET available = available - $1, escrowed = escrowed + $1
        WHERE username = $2`, amount, username); err != nil {
		return Hold{}, err
	}

	hold := Hold{
		ID:        uuid.NewString(),
		Username:  username,
		WagerID:   wagerID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `INSERT INTO holds (id, username, wager_id, amount, released, created_at)
        VALUES ($1, $2, $3, $4, false, $5)`, hold.ID, hold.Username, hold.WagerID, hold.Amount, hold.CreatedAt); err != nil {
		return Hold{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Hold{}, err
	}
	return hold, nil
}

// Release pays a hold out to the destination user. Marking the hold
// released and moving the money happen in the same transaction.
func (l *PostgresLedger) Release(ctx context.Context, holdID, destination string) (int64, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	amount, err := releaseInTx(ctx, tx, holdID, destination)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return amount, nil
}

// SplitRelease refunds both holds to their owners in one transaction.
func (l *PostgresLedger) SplitRelease(ctx context.Context, holdA, holdB string) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, holdID := range []string{holdA, holdB} {
		var owner string
		err := tx.QueryRow(ctx, `SELECT username FROM holds WHERE id = $1 AND released = false`, holdID).Scan(&owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUnknownHold
			}
			return err
		}
		if _, err := releaseInTx(ctx, tx, holdID, owner); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// HoldReleased reports the hold's released flag.
func (l *PostgresLedger) HoldReleased(ctx context.Context, holdID string) (bool, error) {
	var released bool
	err := l.db.QueryRow(ctx, `SELECT released FROM holds WHERE id = $1`, holdID).Scan(&released)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUnknownHold
		}
		return false, err
	}
	return released, nil
}

func releaseInTx(ctx context.Context, tx pgx.Tx, holdID, destination string) (int64, error) {
	// Claim the hold first; rows-affected 0 means missing or already paid.
	var (
		owner  string
		amount int64
	)
	err := tx.QueryRow(ctx, `UPDATE holds SET released = true, released_to = $1, released_at = now()
        WHERE id = $2 AND released = false RETURNING username, amount`, destination, holdID).Scan(&owner, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownHold
		}
		return 0, err
	}

	// Lock both accounts in a stable order to avoid deadlock between
	// concurrent settlements touching the same pair.
	users := []string{owner, destination}
	if owner == destination {
		users = users[:1]
	} else {
		sort.Strings(users)
	}
	for _, u := range users {
		if _, err := lockAccount(ctx, tx, u); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET escrowed = escrowed - $1 WHERE username = $2`, amount, owner); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET available = available + $1 WHERE username = $2`, amount, destination); err != nil {
		return 0, err
	}
	return amount, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, username string) (Account, error) {
	row := tx.QueryRow(ctx, `SELECT username, available, escrowed FROM accounts WHERE username = $1 FOR UPDATE`, username)
	var acct Account
	if err := row.Scan(&acct.Username, &acct.Available, &acct.Escrowed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrUnknownAccount
		}
		return Account{}, err
	}
	return acct, nil
}
