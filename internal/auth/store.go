package auth

import (
	"context"
	"time"
)

// UserStore manages identity rows and their email-provider credentials.
// Lookup misses return ErrNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, u *User, passwordHash string) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	// Credentials returns the user and its stored password hash, or
	// ErrNotFound when either the user or its email account row is absent.
	Credentials(ctx context.Context, email string) (*User, string, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
	// ListUsers returns a page of users ordered by creation descending.
	ListUsers(ctx context.Context, offset, limit int) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)
	UpdateRole(ctx context.Context, userID, role string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
}

// SessionStore persists login sessions. Token lookups return (nil, nil) on a
// miss; the caller maps that to 401.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSessionByToken(ctx context.Context, token string) (*Session, error)
	FindSessionByRefreshToken(ctx context.Context, token string) (*Session, error)
	FindSessionByID(ctx context.Context, id string) (*Session, error)
	// UpdateSession rewrites the row's tokens, expiries and device metadata
	// in place so the session entity survives refresh rotation.
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsByID(ctx context.Context, ids []string) error
	DeleteAllUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, userID string, now time.Time) error
	// ListActiveSessions returns non-expired rows ordered by creation ascending.
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*Session, error)
}

// PasswordResetStore persists recovery tokens. Token lookups return (nil, nil)
// on a miss.
type PasswordResetStore interface {
	CreatePasswordReset(ctx context.Context, pr *PasswordReset) error
	FindPasswordResetByToken(ctx context.Context, token string) (*PasswordReset, error)
	FindPasswordResetByUser(ctx context.Context, userID string) (*PasswordReset, error)
	// ReplacePasswordReset rewrites an existing row with a fresh token and
	// clears the used flag.
	ReplacePasswordReset(ctx context.Context, id, token string, expiresAt time.Time) error
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// EmailVerificationStore persists address-confirmation tokens.
type EmailVerificationStore interface {
	CreateEmailVerification(ctx context.Context, ev *EmailVerification) error
	FindEmailVerificationByToken(ctx context.Context, token string) (*EmailVerification, error)
	FindLatestEmailVerification(ctx context.Context, userID string) (*EmailVerification, error)
	InvalidateEmailVerifications(ctx context.Context, userID string) error
	MarkEmailVerificationUsed(ctx context.Context, token string) error
}

// Mailer enqueues outbound email jobs; delivery happens on the worker loop.
type Mailer interface {
	EnqueueVerificationEmail(ctx context.Context, emails []string, token string) error
	EnqueueResetPasswordEmail(ctx context.Context, emails []string, token string) error
}
