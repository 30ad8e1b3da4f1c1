package auth

import (
	"errors"
	"time"

	"github.com/grade-stakes/grade_stakes/internal/config"
	"github.com/grade-stakes/grade_stakes/internal/identity"
)

// ErrExpiredToken indicates a structurally valid but expired token.
var ErrExpiredToken = errors.New("token expired")

// Service issues and verifies access tokens. Every ledger-affecting
// endpoint takes the acting user from a verified token, never from the
// request body.
type Service struct {
	cfg config.Config
}

// NewService builds an auth service.
func NewService(cfg config.Config) *Service {
	return &Service{cfg: cfg}
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs an access token for the user.
func (s *Service) Issue(user identity.User) (Token, error) {
	now := time.Now()
	exp := now.Add(s.cfg.AccessTokenTTL)
	claims := map[string]any{
		"sub": user.Username,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := SignHS256(claims, []byte(s.cfg.JWTSecret))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Verify checks a token and returns the subject username.
func (s *Service) Verify(tokenStr string) (string, error) {
	claims, err := ParseAndVerifyHS256(tokenStr, []byte(s.cfg.JWTSecret))
	if err != nil {
		return "", err
	}
	expFloat, _ := claims["exp"].(float64)
	if time.Now().Unix() >= int64(expFloat) {
		return "", ErrExpiredToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("missing subject claim")
	}
	return sub, nil
}
