package auth

import "time"

// User is an identity record. Role is a single string; multi-role grouping
// lives in the policy engine, not here.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FullName      string    `json:"fullName"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Session records one authenticated device's access/refresh tokens and
// validity window. At most MaxSessionsPerUser non-expired rows exist per user;
// the oldest beyond the cap are evicted on login.
type Session struct {
	ID                    string
	UserID                string
	SessionToken          string
	ExpireAt              time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	DeviceName            string
	IPAddress             string
	UserAgent             string
	CreatedAt             time.Time
}

// RefreshValid reports whether the session carries a refresh token that has
// not passed its row expiry.
func (s *Session) RefreshValid(now time.Time) bool {
	return s.RefreshToken != "" && !s.RefreshTokenExpiresAt.IsZero() && now.Before(s.RefreshTokenExpiresAt)
}

// SessionInfo is the caller-facing projection of a session row.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"deviceName"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpireAt   time.Time `json:"expireAt"`
	IsCurrent  bool      `json:"isCurrent"`
}

// DeviceInfo describes the client a session was created from.
type DeviceInfo struct {
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// PasswordReset is a single-use password recovery token. One active row per
// user: a pending unexpired row blocks reissue.
type PasswordReset struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IsUsed    bool
	CreatedAt time.Time
}

// EmailVerification is a single-use address confirmation token.
type EmailVerification struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IsUsed    bool
	CreatedAt time.Time
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users        []*User `json:"users"`
	CurrentPage  int     `json:"currentPage"`
	IsFirstPage  bool    `json:"isFirstPage"`
	IsLastPage   bool    `json:"isLastPage"`
	PreviousPage *int    `json:"previousPage"`
	NextPage     *int    `json:"nextPage"`
	PageCount    int     `json:"pageCount"`
	TotalCount   int     `json:"totalCount"`
}

// DefaultRole is assigned to newly registered users.
const DefaultRole = "user"

// DefaultPageSize and MaxPageSize bound the admin user listing.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// MaxSessionsPerUser caps concurrent non-expired sessions per user.
const MaxSessionsPerUser = 5

// ResendInterval is the minimum wait between verification or reset reissues.
const ResendInterval = 5 * time.Minute
