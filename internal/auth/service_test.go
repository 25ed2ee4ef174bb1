package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"whiteboard/internal/config"
)

func newTestService() *Service {
	return NewService(&config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}})
}

func TestIssueAndParse(t *testing.T) {
	s := newTestService()
	token, err := s.IssueParticipantToken("participant-1")
	if err != nil {
		t.Fatalf("IssueParticipantToken failed: %v", err)
	}
	identity, err := s.ParseParticipantToken(token)
	if err != nil {
		t.Fatalf("ParseParticipantToken failed: %v", err)
	}
	if identity != "participant-1" {
		t.Errorf("identity = %q", identity)
	}
}

func TestParseRejectsOtherSecret(t *testing.T) {
	token, _ := newTestService().IssueParticipantToken("participant-1")
	other := NewService(&config.Config{JWT: config.JWTConfig{Secret: []byte("other"), ExpiresIn: time.Hour}})
	if _, err := other.ParseParticipantToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	s := newTestService()
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	token, _ := s.IssueParticipantToken("participant-1")

	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := s.ParseParticipantToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	if _, err := newTestService().IssueParticipantToken(""); err == nil {
		t.Error("expected error for empty identity")
	}
}

func TestResolve(t *testing.T) {
	s := newTestService()

	identity, token, err := s.Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !strings.HasPrefix(identity, "participant-") || token == "" {
		t.Fatalf("unexpected fresh identity %q token %q", identity, token)
	}

	again, sameToken, err := s.Resolve(token)
	if err != nil || again != identity || sameToken != token {
		t.Errorf("token not honored: %q %q %v", again, sameToken, err)
	}

	fresh, _, err := s.Resolve("garbage")
	if err != nil || fresh == identity {
		t.Errorf("invalid token should yield a new identity, got %q %v", fresh, err)
	}
}
