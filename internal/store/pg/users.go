package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekeep.dev/internal/auth"
	"gatekeep.dev/internal/ids"
)

var _ auth.UserStore = (*Store)(nil)

// providerEmail is the only credential provider currently wired; the accounts
// table keeps room for OAuth providers later.
const providerEmail = "EMAIL"

func (s *Store) CreateUser(ctx context.Context, u *auth.User, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, email, username, full_name, role)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, u.ID, u.Email, u.Username, u.FullName, u.Role)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into accounts (id, user_id, provider, password)
		values ($1, $2, $3, $4)
	`, ids.New(), u.ID, providerEmail, passwordHash); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, username, full_name, role, email_verified, created_at, updated_at
		from users where id = $1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, username, full_name, role, email_verified, created_at, updated_at
		from users where email = $1
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Role, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Credentials(ctx context.Context, email string) (*auth.User, string, error) {
	var (
		u    auth.User
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		select u.id, u.email, u.username, u.full_name, u.role, u.email_verified, u.created_at, u.updated_at, a.password
		from users u
		join accounts a on a.user_id = u.id and a.provider = $2
		where u.email = $1
	`, email, providerEmail).Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Role, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", auth.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

func (s *Store) UserExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from users where email = $1 or username = $2)
	`, email, username).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, username, full_name, role, email_verified, created_at, updated_at
		from users
		order by created_at desc, id desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Role, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *Store) UpdateRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set role = $2, updated_at = now() where id = $1
	`, userID, role)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts set password = $3 where user_id = $1 and provider = $2
	`, userID, providerEmail, passwordHash)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set email_verified = true, updated_at = now() where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
