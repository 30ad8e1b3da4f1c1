package ledger

// SeedBalance is a test helper that sets the available balance for an
// account when using the in-memory ledger.
func SeedBalance(l Ledger, username string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		acct := mem.accounts[username]
		acct.Username = username
		acct.Available = amount
		mem.accounts[username] = acct
	}
}

// TotalFunds sums available+escrowed over all accounts of the in-memory
// ledger. Tests use it to assert that money is conserved.
func TotalFunds(l Ledger) int64 {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return 0
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	var total int64
	for _, acct := range mem.accounts {
		total += acct.Available + acct.Escrowed
	}
	return total
}
