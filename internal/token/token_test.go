package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueThenVerifyRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	sub := Subject{ID: "user-1", Email: "a@x.com", Role: "user"}
	issued, err := issuer.IssueAccess(sub)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if time.Until(issued.ExpiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", issued.ExpiresAt)
	}

	claims, err := issuer.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@x.com" || claims.Role != "user" {
		t.Fatalf("claims do not match subject: %+v", claims)
	}
	embedded, err := time.Parse(time.RFC3339, claims.Expires)
	if err != nil {
		t.Fatalf("expires claim is not RFC3339: %v", err)
	}
	if d := embedded.Sub(issued.ExpiresAt.Truncate(time.Second)); d < 0 || d > time.Second {
		t.Fatalf("expires claim %v disagrees with issued expiry %v", embedded, issued.ExpiresAt)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewIssuer("secret-a")
	b, _ := NewIssuer("secret-b")

	issued, err := a.IssueAccess(Subject{ID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := b.Verify(issued.Token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	issued, err := issuer.IssueAccess(Subject{ID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Flip one character in the payload segment.
	parts := strings.Split(issued.Token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := issuer.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	past := time.Now().Add(-72 * time.Hour)
	issuer.WithClock(func() time.Time { return past })

	issued, err := issuer.IssueAccess(Subject{ID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	issuer.WithClock(time.Now)
	if _, err := issuer.Verify(issued.Token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for expired token, got %v", err)
	}
}

func TestPurposeTTLs(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.WithClock(func() time.Time { return fixed })

	cases := []struct {
		name string
		fn   func(Subject) (Issued, error)
		ttl  time.Duration
	}{
		{"access", issuer.IssueAccess, AccessTTL},
		{"refresh", issuer.IssueRefresh, RefreshTTL},
		{"reset", issuer.IssuePasswordReset, PasswordResetTTL},
		{"verification", issuer.IssueVerification, VerificationTTL},
	}
	for _, tc := range cases {
		issued, err := tc.fn(Subject{ID: "user-1"})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := issued.ExpiresAt.Sub(fixed); got != tc.ttl {
			t.Fatalf("%s: expected ttl %v, got %v", tc.name, tc.ttl, got)
		}
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
