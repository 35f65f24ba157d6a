package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-authority/internal/model"
)

var accountCols = []string{"id", "email", "username", "first_name", "last_name", "password_hash", "password_changed_at",
	"role", "auth_provider", "is_active", "failed_attempts", "is_locked", "locked_until",
	"email_verified", "verify_token_hash", "verify_token_expires", "reset_token_hash", "reset_token_expires",
	"two_factor_secret", "two_factor_enabled", "backup_codes", "last_login_at", "created_at", "updated_at"}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func accountRows(failed int, codes any) *sqlmock.Rows {
	return sqlmock.NewRows(accountCols).AddRow(
		"acc-1", "a@x.com", nil, "Ada", "L", "$2a$hash", nil,
		"user", "local", true, failed, false, nil,
		false, nil, nil, nil, nil,
		"", false, codes, nil, t0, t0)
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestAccountRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)

	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com'"})

	err := repo.CreateAccount(context.Background(), &model.Account{ID: "acc-1", Email: " A@X.com ", CreatedAt: t0, UpdatedAt: t0})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ByEmailNormalizes(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE email=\?`).
		WithArgs("a@x.com").
		WillReturnRows(accountRows(2, `["h1","h2"]`))

	a, err := repo.AccountByEmail(context.Background(), "  A@X.COM")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", a.ID)
	assert.Equal(t, 2, a.FailedAttempts)
	assert.Equal(t, []string{"h1", "h2"}, a.BackupCodes)
	assert.Empty(t, a.Username)
	assert.Nil(t, a.LockedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id=\?`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := repo.AccountByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepo_UpdateLocksRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id=\? LIMIT 1 FOR UPDATE`).
		WithArgs("acc-1").
		WillReturnRows(accountRows(4, nil))
	mock.ExpectExec("UPDATE accounts SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := repo.UpdateAccount(context.Background(), "acc-1", func(a *model.Account) error {
		a.RegisterFailedLogin(5, 30*time.Minute, t0)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, a.FailedAttempts)
	assert.True(t, a.LockedAt(t0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateRollsBackOnFnError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)
	stop := errors.New("stop")

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("acc-1").WillReturnRows(accountRows(0, nil))
	mock.ExpectRollback()

	_, err := repo.UpdateAccount(context.Background(), "acc-1", func(a *model.Account) error { return stop })
	assert.ErrorIs(t, err, stop)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ConsumeOneTimeToken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE reset_token_hash=\? AND reset_token_expires>\? LIMIT 1 FOR UPDATE`).
		WithArgs("hash", t0).
		WillReturnRows(accountRows(0, nil))
	mock.ExpectExec("UPDATE accounts SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	called := false
	_, err := repo.ConsumeOneTimeToken(context.Background(), model.PurposePasswordReset, "hash", t0, func(a *model.Account) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ConsumeUnknownToken(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccountRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE verify_token_hash=\?`).
		WithArgs("hash", t0).
		WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectRollback()

	_, err := repo.ConsumeOneTimeToken(context.Background(), model.PurposeEmailVerification, "hash", t0, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
