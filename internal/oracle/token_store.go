package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoToken indicates the user has not linked the grade source yet.
var ErrNoToken = errors.New("no grade source token for user")

// Token is a per-user credential for the external grade source, stored
// server-side and never returned to clients after linking.
type Token struct {
	Username  string
	Value     string
	Valid     bool
	CheckedAt time.Time
}

// TokenStore persists grade source credentials.
type TokenStore interface {
	Put(ctx context.Context, token Token) error
	Get(ctx context.Context, username string) (Token, error)
}

type memoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryTokenStore builds an in-memory token store for tests and dev mode.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{tokens: make(map[string]Token)}
}

func (s *memoryTokenStore) Put(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Username] = token
	return nil
}

func (s *memoryTokenStore) Get(_ context.Context, username string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[username]
	if !ok {
		return Token{}, ErrNoToken
	}
	return token, nil
}

// PostgresTokenStore stores grade source tokens in PostgreSQL.
type PostgresTokenStore struct {
	db *pgxpool.Pool
}

// NewPostgresTokenStore builds a token store backed by PostgreSQL.
func NewPostgresTokenStore(db *pgxpool.Pool) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

// Put upserts the user's token.
func (s *PostgresTokenStore) Put(ctx context.Context, token Token) error {
	_, err := s.db.Exec(ctx, `INSERT INTO oracle_tokens (username, token, valid, checked_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (username) DO UPDATE SET token = $2, valid = $3, checked_at = $4`,
		token.Username, token.Value, token.Valid, token.CheckedAt.UTC())
	return err
}

// Get fetches the user's token.
func (s *PostgresTokenStore) Get(ctx context.Context, username string) (Token, error) {
	row := s.db.QueryRow(ctx, `SELECT username, token, valid, checked_at FROM oracle_tokens WHERE username = $1`, username)
	var token Token
	if err := row.Scan(&token.Username, &token.Value, &token.Valid, &token.CheckedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNoToken
		}
		return Token{}, err
	}
	return token, nil
}
