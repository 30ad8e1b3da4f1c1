package identity

import "time"

// User represents a registered account. The username doubles as the
// ledger account identifier.
type User struct {
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Credentials carries a registration or login request.
type Credentials struct {
	Username string
	Email    string
	Password string
}
