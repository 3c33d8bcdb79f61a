package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatekeep.dev/internal/ids"
	"gatekeep.dev/internal/token"
)

// Service implements the authentication flows: registration, login, refresh
// rotation, logout, session listing, password reset and email verification.
type Service struct {
	users         UserStore
	sessions      SessionStore
	resets        PasswordResetStore
	verifications EmailVerificationStore
	issuer        *token.Issuer
	mailer        Mailer

	maxSessions int
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMaxSessions overrides the per-user session cap.
func WithMaxSessions(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service.
func NewService(users UserStore, sessions SessionStore, resets PasswordResetStore, verifications EmailVerificationStore, issuer *token.Issuer, mailer Mailer, opts ...ServiceOption) (*Service, error) {
	if users == nil || sessions == nil || resets == nil || verifications == nil {
		return nil, errors.New("auth: all stores are required")
	}
	if issuer == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	svc := &Service{
		users:         users,
		sessions:      sessions,
		resets:        resets,
		verifications: verifications,
		issuer:        issuer,
		mailer:        mailer,
		maxSessions:   MaxSessionsPerUser,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterInput carries the fields required to create an account.
type RegisterInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// LoginResult is a freshly authenticated user with its token pair.
type LoginResult struct {
	User         *User
	Token        string
	RefreshToken string
}

func (s *Service) subject(u *User) token.Subject {
	return token.Subject{ID: u.ID, Email: u.Email, Role: u.Role}
}

// Register creates a user with the default role, stores an email-verification
// token and enqueues the verification email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	username := strings.TrimSpace(strings.ToLower(in.Username))
	if email == "" || in.Password == "" || username == "" {
		return nil, fmt.Errorf("%w: email, password and username are required", ErrInvalidCredentials)
	}

	exists, err := s.users.UserExists(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:       ids.New(),
		Email:    email,
		Username: username,
		FullName: strings.TrimSpace(in.FullName),
		Role:     DefaultRole,
	}
	if err := s.users.CreateUser(ctx, user, hash); err != nil {
		return nil, err
	}

	issued, err := s.issuer.IssueVerification(s.subject(user))
	if err != nil {
		return nil, err
	}
	if err := s.verifications.CreateEmailVerification(ctx, &EmailVerification{
		ID:        ids.New(),
		UserID:    user.ID,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	if s.mailer != nil {
		if err := s.mailer.EnqueueVerificationEmail(ctx, []string{user.Email}, issued.Token); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// Login verifies credentials, issues a token pair, applies the session cap and
// records the new session.
func (s *Service) Login(ctx context.Context, email, password string, device DeviceInfo) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, hash, err := s.users.Credentials(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := VerifyPassword(hash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	access, err := s.issuer.IssueAccess(s.subject(user))
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(s.subject(user))
	if err != nil {
		return nil, err
	}

	// Cap management runs before the insert so the new row is counted
	// against the limit.
	if err := s.ManageUserSessions(ctx, user.ID, s.maxSessions); err != nil {
		return nil, err
	}
	if err := s.sessions.CreateSession(ctx, &Session{
		ID:                    ids.New(),
		UserID:                user.ID,
		SessionToken:          access.Token,
		ExpireAt:              access.ExpiresAt,
		RefreshToken:          refresh.Token,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		DeviceName:            device.DeviceName,
		IPAddress:             device.IPAddress,
		UserAgent:             device.UserAgent,
	}); err != nil {
		return nil, err
	}

	return &LoginResult{User: user, Token: access.Token, RefreshToken: refresh.Token}, nil
}

// ManageUserSessions sweeps expired rows for the user and evicts the oldest
// active sessions so that after one more insert the count stays <= maxSessions.
func (s *Service) ManageUserSessions(ctx context.Context, userID string, maxSessions int) error {
	if maxSessions <= 0 {
		maxSessions = s.maxSessions
	}
	now := s.now()
	if err := s.sessions.DeleteExpiredSessions(ctx, userID, now); err != nil {
		return err
	}
	active, err := s.sessions.ListActiveSessions(ctx, userID, now)
	if err != nil {
		return err
	}
	if len(active) < maxSessions {
		return nil
	}
	evict := active[:len(active)-maxSessions+1]
	idsToDelete := make([]string, 0, len(evict))
	for _, sess := range evict {
		idsToDelete = append(idsToDelete, sess.ID)
	}
	return s.sessions.DeleteSessionsByID(ctx, idsToDelete)
}

// AuthenticateAccess validates a bearer access token against both the session
// row and the token signature. Returns ErrUnauthorized on any mismatch.
func (s *Service) AuthenticateAccess(ctx context.Context, raw string) (*Session, *token.Claims, error) {
	sess, err := s.sessions.FindSessionByToken(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrUnauthorized
	}
	if !s.now().Before(sess.ExpireAt) {
		return nil, nil, ErrUnauthorized
	}
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	if sess.UserID == "" || claims.UserID != sess.UserID {
		return nil, nil, ErrUnauthorized
	}
	return sess, claims, nil
}

// AuthenticateRefresh validates a bearer refresh token the same way.
func (s *Service) AuthenticateRefresh(ctx context.Context, raw string) (*Session, *token.Claims, error) {
	sess, err := s.sessions.FindSessionByRefreshToken(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrUnauthorized
	}
	if !sess.RefreshValid(s.now()) {
		return nil, nil, ErrUnauthorized
	}
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	if sess.UserID == "" || claims.UserID != sess.UserID {
		return nil, nil, ErrUnauthorized
	}
	return sess, claims, nil
}

// Refresh rotates the token pair for a valid refresh token. The existing
// session row is rewritten in place; a fresh row is created only when the row
// disappeared between validation and rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (*LoginResult, error) {
	sess, _, err := s.AuthenticateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccess(s.subject(user))
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(s.subject(user))
	if err != nil {
		return nil, err
	}

	if err := s.ManageUserSessions(ctx, user.ID, s.maxSessions); err != nil {
		return nil, err
	}

	current, err := s.sessions.FindSessionByID(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		if err := s.sessions.CreateSession(ctx, &Session{
			ID:                    ids.New(),
			UserID:                user.ID,
			SessionToken:          access.Token,
			ExpireAt:              access.ExpiresAt,
			RefreshToken:          refresh.Token,
			RefreshTokenExpiresAt: refresh.ExpiresAt,
			DeviceName:            device.DeviceName,
			IPAddress:             device.IPAddress,
			UserAgent:             device.UserAgent,
		}); err != nil {
			return nil, err
		}
	} else {
		current.SessionToken = access.Token
		current.ExpireAt = access.ExpiresAt
		current.RefreshToken = refresh.Token
		current.RefreshTokenExpiresAt = refresh.ExpiresAt
		current.DeviceName = device.DeviceName
		current.IPAddress = device.IPAddress
		current.UserAgent = device.UserAgent
		if err := s.sessions.UpdateSession(ctx, current); err != nil {
			return nil, err
		}
	}

	return &LoginResult{User: user, Token: access.Token, RefreshToken: refresh.Token}, nil
}

// Logout deletes the session matching the access token.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	sess, err := s.sessions.FindSessionByToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrUnauthorized
	}
	return s.sessions.DeleteSession(ctx, accessToken)
}

// Sessions sweeps expired rows and returns the remaining sessions newest
// first, flagging the one matching currentToken.
func (s *Service) Sessions(ctx context.Context, userID, currentToken string) ([]SessionInfo, error) {
	now := s.now()
	if err := s.sessions.DeleteExpiredSessions(ctx, userID, now); err != nil {
		return nil, err
	}
	active, err := s.sessions.ListActiveSessions(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	// ListActive is ordered oldest first; present newest first.
	infos := make([]SessionInfo, 0, len(active))
	for i := len(active) - 1; i >= 0; i-- {
		sess := active[i]
		infos = append(infos, SessionInfo{
			ID:         sess.ID,
			DeviceName: sess.DeviceName,
			IPAddress:  sess.IPAddress,
			UserAgent:  sess.UserAgent,
			CreatedAt:  sess.CreatedAt,
			ExpireAt:   sess.ExpireAt,
			IsCurrent:  sess.SessionToken == currentToken,
		})
	}
	return infos, nil
}

// Me loads the caller's user record.
func (s *Service) Me(ctx context.Context, userID string) (*User, error) {
	return s.users.FindUser(ctx, userID)
}

// ListUsers returns one page of the user listing, newest first, with the
// pagination metadata the admin surface exposes.
func (s *Service) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	pageCount := (total + limit - 1) / limit
	if pageCount == 0 {
		pageCount = 1
	}
	users, err := s.users.ListUsers(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}

	p := &UserPage{
		Users:       users,
		CurrentPage: page,
		IsFirstPage: page == 1,
		IsLastPage:  page >= pageCount,
		PageCount:   pageCount,
		TotalCount:  total,
	}
	if page > 1 {
		prev := page - 1
		p.PreviousPage = &prev
	}
	if page < pageCount {
		next := page + 1
		p.NextPage = &next
	}
	return p, nil
}

// FindUser loads a user by id. Used by the policy gate and admin handlers.
func (s *Service) FindUser(ctx context.Context, userID string) (*User, error) {
	return s.users.FindUser(ctx, userID)
}

// UpdateUserRole rewrites the user's role column. Cache invalidation and
// policy reload are composed by the caller.
func (s *Service) UpdateUserRole(ctx context.Context, userID, role string) (*User, error) {
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	return user, nil
}

// ForgotPassword issues (or refuses to reissue) a password-reset token for the
// account with the given email and enqueues the reset email.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	existing, err := s.resets.FindPasswordResetByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}

	var resetToken string
	switch {
	case existing == nil:
		issued, err := s.issuer.IssuePasswordReset(s.subject(user))
		if err != nil {
			return "", err
		}
		if err := s.resets.CreatePasswordReset(ctx, &PasswordReset{
			ID:        ids.New(),
			UserID:    user.ID,
			Token:     issued.Token,
			ExpiresAt: issued.ExpiresAt,
		}); err != nil {
			return "", err
		}
		resetToken = issued.Token
	case s.now().After(existing.ExpiresAt):
		issued, err := s.issuer.IssuePasswordReset(s.subject(user))
		if err != nil {
			return "", err
		}
		if err := s.resets.ReplacePasswordReset(ctx, existing.ID, issued.Token, issued.ExpiresAt); err != nil {
			return "", err
		}
		resetToken = issued.Token
	default:
		// A pending unexpired token exists; the client must wait it out.
		return "", ErrResendThrottled
	}

	if s.mailer != nil {
		if err := s.mailer.EnqueueResetPasswordEmail(ctx, []string{user.Email}, resetToken); err != nil {
			return "", err
		}
	}
	return resetToken, nil
}

// ResetPassword consumes a reset token, rehashes the password and purges every
// session for the user. A used token keeps failing with ErrTokenAlreadyUsed
// and never mutates the account.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	reset, err := s.resets.FindPasswordResetByToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if reset == nil {
		return ErrTokenNotFound
	}
	if reset.IsUsed {
		return ErrTokenAlreadyUsed
	}
	// Row expiry first: it mirrors the signed claim and yields the precise
	// error; signature verification then catches tampering.
	if s.now().After(reset.ExpiresAt) {
		return ErrTokenExpired
	}
	claims, err := s.issuer.Verify(rawToken)
	if err != nil {
		return ErrTokenInvalid
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, claims.UserID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if err := s.resets.MarkPasswordResetUsed(ctx, rawToken); err != nil {
		return err
	}
	return s.sessions.DeleteAllUserSessions(ctx, claims.UserID)
}

// VerifyEmail consumes a verification token and flips the user's
// emailVerified flag.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (*User, error) {
	ev, err := s.verifications.FindEmailVerificationByToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrTokenInvalid
	}
	if ev.IsUsed {
		return nil, ErrTokenAlreadyUsed
	}
	if s.now().After(ev.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	claims, err := s.issuer.Verify(rawToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := s.users.FindUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user.EmailVerified {
		return nil, ErrEmailAlreadyVerified
	}
	if err := s.verifications.MarkEmailVerificationUsed(ctx, rawToken); err != nil {
		return nil, err
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.EmailVerified = true
	return user, nil
}

// ResendVerification reissues a verification token unless one was issued less
// than ResendInterval ago.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user.EmailVerified {
		return "", ErrEmailAlreadyVerified
	}

	latest, err := s.verifications.FindLatestEmailVerification(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if latest != nil && s.now().Sub(latest.CreatedAt) < ResendInterval {
		return "", ErrResendThrottled
	}

	if err := s.verifications.InvalidateEmailVerifications(ctx, user.ID); err != nil {
		return "", err
	}
	issued, err := s.issuer.IssueVerification(s.subject(user))
	if err != nil {
		return "", err
	}
	if err := s.verifications.CreateEmailVerification(ctx, &EmailVerification{
		ID:        ids.New(),
		UserID:    user.ID,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}); err != nil {
		return "", err
	}
	if s.mailer != nil {
		if err := s.mailer.EnqueueVerificationEmail(ctx, []string{user.Email}, issued.Token); err != nil {
			return "", err
		}
	}
	return issued.Token, nil
}
