package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"gatekeep.dev/internal/auth"
)

func fakeUniqueViolation() error {
	return &pgconn.PgError{Code: pgErrUniqueViolation, Message: "duplicate key value violates unique constraint"}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestCreateUserInsertsUserAndAccount(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WithArgs("u1", "a@x.com", "alice", "Alice", "user").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("insert into accounts").
		WithArgs(sqlmock.AnyArg(), "u1", "EMAIL", "hash").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	u := &auth.User{ID: "u1", Email: "a@x.com", Username: "alice", FullName: "Alice", Role: "user"}
	if err := store.CreateUser(context.Background(), u, "hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if !u.CreatedAt.Equal(now) {
		t.Fatalf("created_at not populated from returning clause")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserDuplicateMapsToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WillReturnError(fakeUniqueViolation())
	mock.ExpectRollback()

	u := &auth.User{ID: "u1", Email: "a@x.com", Username: "alice", Role: "user"}
	err := store.CreateUser(context.Background(), u, "hash")
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCredentialsJoinsAccountRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "email", "username", "full_name", "role", "email_verified", "created_at", "updated_at", "password"}
	mock.ExpectQuery("select u.id, u.email").
		WithArgs("a@x.com", "EMAIL").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@x.com", "alice", "Alice", "admin", true, now, now, "hash"))

	u, hash, err := store.Credentials(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if u.Role != "admin" || hash != "hash" {
		t.Fatalf("unexpected result: role=%s hash=%s", u.Role, hash)
	}
}

func TestFindUserMissReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, email, username").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "full_name", "role", "email_verified", "created_at", "updated_at"}))

	_, err := store.FindUser(context.Background(), "nope")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRoleZeroRowsIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set role").
		WithArgs("nope", "admin").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateRole(context.Background(), "nope", "admin"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUsersAppliesLimitAndOffset(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "email", "username", "full_name", "role", "email_verified", "created_at", "updated_at"}
	mock.ExpectQuery("order by created_at desc").
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u5", "e@x.com", "eve", "Eve", "user", false, now, now).
			AddRow("u4", "d@x.com", "dan", "Dan", "user", true, now.Add(-time.Hour), now))

	users, err := store.ListUsers(context.Background(), 4, 2)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].ID != "u5" || users[1].ID != "u4" {
		t.Fatalf("unexpected page: %+v", users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountUsersScansTotal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := store.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 42 {
		t.Fatalf("unexpected total %d", n)
	}
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "session_token", "expire_at", "refresh_token",
		"refresh_token_expires_at", "device_name", "ip_address", "user_agent", "created_at",
	})
}

func TestFindSessionByTokenMissReturnsNilNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from sessions where session_token").
		WithArgs("tok").
		WillReturnRows(sessionRows())

	sess, err := store.FindSessionByToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FindSessionByToken: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil session on miss, got %+v", sess)
	}
}

func TestFindSessionByRefreshTokenScansNullableFields(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select (.+) from sessions where refresh_token").
		WithArgs("rtok").
		WillReturnRows(sessionRows().AddRow(
			"s1", "u1", "atok", now.Add(time.Hour), "rtok", now.Add(24*time.Hour),
			"laptop", "10.0.0.1", "curl", now))

	sess, err := store.FindSessionByRefreshToken(context.Background(), "rtok")
	if err != nil {
		t.Fatalf("FindSessionByRefreshToken: %v", err)
	}
	if sess == nil || sess.RefreshToken != "rtok" || sess.DeviceName != "laptop" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestUpdateSessionRewritesRowInPlace(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("update sessions").
		WithArgs("s1", "newtok", sqlmock.AnyArg(), "newrtok", sqlmock.AnyArg(), "laptop", "10.0.0.1", "curl").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateSession(context.Background(), &auth.Session{
		ID: "s1", UserID: "u1", SessionToken: "newtok", ExpireAt: now.Add(time.Hour),
		RefreshToken: "newrtok", RefreshTokenExpiresAt: now.Add(24 * time.Hour),
		DeviceName: "laptop", IPAddress: "10.0.0.1", UserAgent: "curl",
	})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
}

func TestDeleteSessionsByIDSkipsEmptySlice(t *testing.T) {
	store, mock := newMockStore(t)

	if err := store.DeleteSessionsByID(context.Background(), nil); err != nil {
		t.Fatalf("DeleteSessionsByID(nil): %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query should run for an empty id list: %v", err)
	}
}

func TestListActiveSessionsOrdersAscending(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("order by created_at asc").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnRows(sessionRows().
			AddRow("s1", "u1", "t1", now.Add(time.Hour), nil, nil, "a", "1.1.1.1", "ua", now.Add(-2*time.Hour)).
			AddRow("s2", "u1", "t2", now.Add(time.Hour), nil, nil, "b", "1.1.1.2", "ua", now.Add(-time.Hour)))

	sessions, err := store.ListActiveSessions(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("ListActiveSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s1" || sessions[1].ID != "s2" {
		t.Fatalf("unexpected order: %+v", sessions)
	}
	if sessions[0].RefreshToken != "" {
		t.Fatalf("null refresh token should scan to empty string")
	}
}

func TestReplacePasswordResetClearsUsedFlag(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update password_resets").
		WithArgs("pr1", "fresh", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.ReplacePasswordReset(context.Background(), "pr1", "fresh", time.Now().Add(5*time.Minute)); err != nil {
		t.Fatalf("ReplacePasswordReset: %v", err)
	}
}

func TestFindPasswordResetByTokenMissReturnsNilNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from password_resets where token").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "is_used", "created_at"}))

	pr, err := store.FindPasswordResetByToken(context.Background(), "nope")
	if err != nil || pr != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", pr, err)
	}
}

func TestInvalidateEmailVerificationsTargetsUnusedRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update email_verifications set is_used = true where user_id").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.InvalidateEmailVerifications(context.Background(), "u1"); err != nil {
		t.Fatalf("InvalidateEmailVerifications: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
