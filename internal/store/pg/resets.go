package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatekeep.dev/internal/auth"
)

var (
	_ auth.PasswordResetStore     = (*Store)(nil)
	_ auth.EmailVerificationStore = (*Store)(nil)
)

func (s *Store) CreatePasswordReset(ctx context.Context, pr *auth.PasswordReset) error {
	row := s.db.QueryRowContext(ctx, `
		insert into password_resets (id, user_id, token, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, pr.ID, pr.UserID, pr.Token, pr.ExpiresAt)
	return row.Scan(&pr.CreatedAt)
}

func (s *Store) FindPasswordResetByToken(ctx context.Context, token string) (*auth.PasswordReset, error) {
	return scanPasswordReset(s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, is_used, created_at
		from password_resets where token = $1
	`, token))
}

// FindPasswordResetByUser returns the user's single reset row; the service
// reuses it across repeated forgot-password requests.
func (s *Store) FindPasswordResetByUser(ctx context.Context, userID string) (*auth.PasswordReset, error) {
	return scanPasswordReset(s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, is_used, created_at
		from password_resets where user_id = $1
		order by created_at desc
		limit 1
	`, userID))
}

func scanPasswordReset(row *sql.Row) (*auth.PasswordReset, error) {
	var pr auth.PasswordReset
	err := row.Scan(&pr.ID, &pr.UserID, &pr.Token, &pr.ExpiresAt, &pr.IsUsed, &pr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (s *Store) ReplacePasswordReset(ctx context.Context, id, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update password_resets
		set token = $2, expires_at = $3, is_used = false, created_at = now()
		where id = $1
	`, id, token, expiresAt)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *Store) MarkPasswordResetUsed(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		update password_resets set is_used = true where token = $1
	`, token)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *Store) CreateEmailVerification(ctx context.Context, ev *auth.EmailVerification) error {
	row := s.db.QueryRowContext(ctx, `
		insert into email_verifications (id, user_id, token, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, ev.ID, ev.UserID, ev.Token, ev.ExpiresAt)
	return row.Scan(&ev.CreatedAt)
}

func (s *Store) FindEmailVerificationByToken(ctx context.Context, token string) (*auth.EmailVerification, error) {
	return scanEmailVerification(s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, is_used, created_at
		from email_verifications where token = $1
	`, token))
}

func (s *Store) FindLatestEmailVerification(ctx context.Context, userID string) (*auth.EmailVerification, error) {
	return scanEmailVerification(s.db.QueryRowContext(ctx, `
		select id, user_id, token, expires_at, is_used, created_at
		from email_verifications where user_id = $1
		order by created_at desc
		limit 1
	`, userID))
}

func scanEmailVerification(row *sql.Row) (*auth.EmailVerification, error) {
	var ev auth.EmailVerification
	err := row.Scan(&ev.ID, &ev.UserID, &ev.Token, &ev.ExpiresAt, &ev.IsUsed, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// InvalidateEmailVerifications marks every outstanding token used so a resend
// leaves exactly one valid token per user.
func (s *Store) InvalidateEmailVerifications(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update email_verifications set is_used = true where user_id = $1 and is_used = false
	`, userID)
	return err
}

func (s *Store) MarkEmailVerificationUsed(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		update email_verifications set is_used = true where token = $1
	`, token)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}
