package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatekeep.dev/internal/auth"
)

var _ auth.SessionStore = (*Store)(nil)

const sessionColumns = `id, user_id, session_token, expire_at, refresh_token, refresh_token_expires_at, device_name, ip_address, user_agent, created_at`

func (s *Store) CreateSession(ctx context.Context, sess *auth.Session) error {
	row := s.db.QueryRowContext(ctx, `
		insert into sessions (id, user_id, session_token, expire_at, refresh_token, refresh_token_expires_at, device_name, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at
	`, sess.ID, sess.UserID, sess.SessionToken, sess.ExpireAt,
		nullString(sess.RefreshToken), nullTime(sess.RefreshTokenExpiresAt),
		sess.DeviceName, sess.IPAddress, sess.UserAgent)
	if err := row.Scan(&sess.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindSessionByToken(ctx context.Context, token string) (*auth.Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where session_token = $1`, token))
}

func (s *Store) FindSessionByRefreshToken(ctx context.Context, token string) (*auth.Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where refresh_token = $1`, token))
}

func (s *Store) FindSessionByID(ctx context.Context, id string) (*auth.Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id = $1`, id))
}

// scanSession maps a lookup miss to (nil, nil); callers turn that into 401.
func (s *Store) scanSession(row *sql.Row) (*auth.Session, error) {
	var (
		sess       auth.Session
		refresh    sql.NullString
		refreshExp sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.SessionToken, &sess.ExpireAt,
		&refresh, &refreshExp, &sess.DeviceName, &sess.IPAddress, &sess.UserAgent, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if refresh.Valid {
		sess.RefreshToken = refresh.String
	}
	if refreshExp.Valid {
		sess.RefreshTokenExpiresAt = refreshExp.Time
	}
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *auth.Session) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set session_token = $2, expire_at = $3, refresh_token = $4, refresh_token_expires_at = $5,
		    device_name = $6, ip_address = $7, user_agent = $8
		where id = $1
	`, sess.ID, sess.SessionToken, sess.ExpireAt,
		nullString(sess.RefreshToken), nullTime(sess.RefreshTokenExpiresAt),
		sess.DeviceName, sess.IPAddress, sess.UserAgent)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where session_token = $1`, token)
	return err
}

func (s *Store) DeleteSessionsByID(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `delete from sessions where id = any($1)`, ids)
	return err
}

func (s *Store) DeleteAllUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where user_id = $1`, userID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where user_id = $1 and expire_at < $2`, userID, now)
	return err
}

func (s *Store) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*auth.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+`
		from sessions
		where user_id = $1 and expire_at >= $2
		order by created_at asc
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Session
	for rows.Next() {
		var (
			sess       auth.Session
			refresh    sql.NullString
			refreshExp sql.NullTime
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.SessionToken, &sess.ExpireAt,
			&refresh, &refreshExp, &sess.DeviceName, &sess.IPAddress, &sess.UserAgent, &sess.CreatedAt); err != nil {
			return nil, err
		}
		if refresh.Valid {
			sess.RefreshToken = refresh.String
		}
		if refreshExp.Valid {
			sess.RefreshTokenExpiresAt = refreshExp.Time
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
