package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/grade-stakes/grade_stakes/internal/ledger"
)

// ErrInvalidCredentials indicates a failed login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Service manages the account lifecycle. Registration provisions the
// user's ledger account so every registered user can hold money.
type Service struct {
	repo   Repository
	ledger ledger.Ledger
}

// NewService creates a new identity service.
func NewService(repo Repository, ledgerBackend ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: ledgerBackend}
}

// Register creates a user with a hashed password and an empty ledger account.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" {
		return User{}, errors.New("username is required")
	}
	if !strings.Contains(creds.Email, "@") {
		return User{}, errors.New("valid email is required")
	}
	if len(creds.Password) < 8 {
		return User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		Username:     username,
		Email:        creds.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	if err := s.ledger.EnsureAccount(ctx, username); err != nil {
		return User{}, err
	}

	return user, nil
}

// Authenticate verifies a username/password pair.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

// List returns all registered usernames.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.repo.ListUsernames(ctx)
}
