// Package token issues and verifies the HS256-signed credentials used for
// access, refresh, password-reset and email-verification flows.
//
// A token's payload carries its own expiry both as the registered exp claim
// and as an ISO-8601 "expires" field. The session layer additionally keeps a
// per-row expiry column, so freshness is always checked twice: once against
// the signed claim and once against server-side state.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Lifetimes for each token purpose.
const (
	AccessTTL        = 48 * time.Hour
	RefreshTTL       = 30 * 24 * time.Hour
	PasswordResetTTL = 5 * time.Minute
	VerificationTTL  = 48 * time.Hour
)

// ErrInvalidSignature indicates the token failed signature or claim validation.
var ErrInvalidSignature = errors.New("token: invalid signature")

// Claims is the signed payload shared by all token purposes.
type Claims struct {
	UserID  string `json:"id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Expires string `json:"expires"`
	jwt.RegisteredClaims
}

// Subject identifies the user a token was minted for.
type Subject struct {
	ID    string
	Email string
	Role  string
}

// Issued is a signed token along with its expiry.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Issuer signs and verifies tokens with a process-wide HMAC secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer constructs an Issuer. The secret must be non-empty.
func NewIssuer(secret string) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: secret is required")
	}
	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (i *Issuer) WithClock(fn func() time.Time) *Issuer {
	if fn != nil {
		i.now = fn
	}
	return i
}

// Issue signs a token for the subject expiring after ttl.
func (i *Issuer) Issue(sub Subject, ttl time.Duration) (Issued, error) {
	if strings.TrimSpace(sub.ID) == "" {
		return Issued{}, errors.New("token: subject id is required")
	}
	if ttl <= 0 {
		return Issued{}, errors.New("token: ttl must be greater than zero")
	}

	now := i.now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		UserID:  sub.ID,
		Email:   sub.Email,
		Role:    sub.Role,
		Expires: expires.Format(time.RFC3339),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signed, ExpiresAt: expires}, nil
}

// IssueAccess mints an access token for the subject.
func (i *Issuer) IssueAccess(sub Subject) (Issued, error) { return i.Issue(sub, AccessTTL) }

// IssueRefresh mints a refresh token for the subject.
func (i *Issuer) IssueRefresh(sub Subject) (Issued, error) { return i.Issue(sub, RefreshTTL) }

// IssuePasswordReset mints a short-lived password-reset token.
func (i *Issuer) IssuePasswordReset(sub Subject) (Issued, error) {
	return i.Issue(sub, PasswordResetTTL)
}

// IssueVerification mints an email-verification token.
func (i *Issuer) IssueVerification(sub Subject) (Issued, error) {
	return i.Issue(sub, VerificationTTL)
}

// Verify checks the signature and registered claims and returns the payload.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidSignature
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, ErrInvalidSignature
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}
