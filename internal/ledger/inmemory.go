package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]Account
	holds    map[string]*memoryHold
}

type memoryHold struct {
	Hold
	released bool
}

// NewInMemory creates a concurrency-safe in-memory ledger. It backs unit
// tests and the dev mode fallback when no database is configured.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		accounts: make(map[string]Account),
		holds:    make(map[string]*memoryHold),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[username]; !exists {
		l.accounts[username] = Account{Username: username}
	}
	return nil
}

func (l *inMemoryLedger) Account(_ context.Context, username string) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[username]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return acct, nil
}

func (l *inMemoryLedger) Deposit(_ context.Context, username string, amount int64) (Account, error) {
	if amount <= 0 {
		return Account{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[username]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	acct.Available += amount
	l.accounts[username] = acct
	return acct, nil
}

func (l *inMemoryLedger) Escrow(_ context.Context, username, wagerID string, amount int64) (Hold, error) {
	if amount <= 0 {
		return Hold{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[username]
	if !ok {
		return Hold{}, ErrUnknownAccount
	}
	if acct.Available < amount {
		return Hold{}, ErrInsufficientFunds
	}

	acct.Available -= amount
	acct.Escrowed += amount
	l.accounts[username] = acct

	hold := Hold{
		ID:        uuid.NewString(),
		Username:  username,
		WagerID:   wagerID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	l.holds[hold.ID] = &memoryHold{Hold: hold}
	return hold, nil
}

func (l *inMemoryLedger) Release(_ context.Context, holdID, destination string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked(holdID, destination)
}

func (l *inMemoryLedger) SplitRelease(_ context.Context, holdA, holdB string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate both before touching either so a void never half-applies.
	for _, id := range []string{holdA, holdB} {
		h, ok := l.holds[id]
		if !ok || h.released {
			return ErrUnknownHold
		}
	}
	for _, id := range []string{holdA, holdB} {
		if _, err := l.releaseLocked(id, l.holds[id].Username); err != nil {
			return err
		}
	}
	return nil
}

func (l *inMemoryLedger) HoldReleased(_ context.Context, holdID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.holds[holdID]
	if !ok {
		return false, ErrUnknownHold
	}
	return h.released, nil
}

func (l *inMemoryLedger) releaseLocked(holdID, destination string) (int64, error) {
	h, ok := l.holds[holdID]
	if !ok || h.released {
		return 0, ErrUnknownHold
	}

	holder, ok := l.accounts[h.Username]
	if !ok {
		return 0, ErrUnknownAccount
	}
	dest, ok := l.accounts[destination]
	if !ok {
		return 0, ErrUnknownAccount
	}

	holder.Escrowed -= h.Amount
	l.accounts[h.Username] = holder

	if destination == h.Username {
		holder.Available += h.Amount
		l.accounts[h.Username] = holder
	} else {
		dest.Available += h.Amount
		l.accounts[destination] = dest
	}

	h.released = true
	return h.Amount, nil
}
