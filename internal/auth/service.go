// Package auth issues participant tokens. A token only carries the opaque
// identity a participant keeps across reconnects; it grants no permissions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"whiteboard/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "whiteboard"

var ErrInvalidToken = errors.New("invalid participant token")

type ParticipantClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

type Service struct {
	cfg *config.Config
	now func() time.Time
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg: cfg,
		now: time.Now,
	}
}

// NewIdentity returns a fresh opaque participant identity.
func NewIdentity() string {
	return "participant-" + uuid.NewString()
}

func (s *Service) IssueParticipantToken(identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("identity is required")
	}
	now := s.now()
	claims := ParticipantClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.ExpiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWT.Secret)
}

func (s *Service) ParseParticipantToken(tokenString string) (string, error) {
	claims := &ParticipantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Identity == "" {
		return "", ErrInvalidToken
	}
	return claims.Identity, nil
}

// Resolve returns the identity carried by tokenString, or a new identity
// and token when tokenString is empty or no longer valid.
func (s *Service) Resolve(tokenString string) (identity, token string, err error) {
	if tokenString != "" {
		if identity, err := s.ParseParticipantToken(tokenString); err == nil {
			return identity, tokenString, nil
		}
	}
	identity = NewIdentity()
	token, err = s.IssueParticipantToken(identity)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	return identity, token, nil
}
