package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidToken indicates the grade source rejected the credential.
var ErrInvalidToken = errors.New("grade source rejected token")

// TokenVerifier checks a candidate credential against the grade source.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, tokenValue string) (bool, error)
}

// LinkService stores and re-checks per-user grade source credentials.
// Tokens are held server-side only; clients see just the link status.
type LinkService struct {
	tokens   TokenStore
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewLinkService builds a link service.
func NewLinkService(tokens TokenStore, verifier TokenVerifier, logger *slog.Logger) *LinkService {
	return &LinkService{tokens: tokens, verifier: verifier, logger: logger}
}

// Link verifies the token against the grade source and stores it.
func (s *LinkService) Link(ctx context.Context, username, tokenValue string) (Token, error) {
	if tokenValue == "" {
		return Token{}, ErrInvalidToken
	}
	valid, err := s.verifier.VerifyToken(ctx, tokenValue)
	if err != nil {
		return Token{}, err
	}
	if !valid {
		return Token{}, ErrInvalidToken
	}

	token := Token{Username: username, Value: tokenValue, Valid: true, CheckedAt: time.Now().UTC()}
	if err := s.tokens.Put(ctx, token); err != nil {
		return Token{}, err
	}
	s.logger.Info("grade source linked", slog.String("username", username))
	return token, nil
}

// Status re-verifies the stored token and records the result.
func (s *LinkService) Status(ctx context.Context, username string) (Token, error) {
	token, err := s.tokens.Get(ctx, username)
	if err != nil {
		return Token{}, err
	}

	valid, err := s.verifier.VerifyToken(ctx, token.Value)
	if err != nil {
		return Token{}, err
	}
	token.Valid = valid
	token.CheckedAt = time.Now().UTC()
	if err := s.tokens.Put(ctx, token); err != nil {
		return Token{}, err
	}
	return token, nil
}
