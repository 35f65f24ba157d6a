package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/identity-authority/internal/database"
	"github.com/iliyamo/identity-authority/internal/model"
)

const accountColumns = `id,email,username,first_name,last_name,password_hash,password_changed_at,
role,auth_provider,is_active,failed_attempts,is_locked,locked_until,
email_verified,verify_token_hash,verify_token_expires,reset_token_hash,reset_token_expires,
two_factor_secret,two_factor_enabled,backup_codes,last_login_at,created_at,updated_at`

// AccountRepo persists accounts in the `accounts` table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// CreateAccount inserts a. Email is stored lower-cased; a taken email or
// username yields ErrDuplicate.
func (r *AccountRepo) CreateAccount(ctx context.Context, a *model.Account) error {
	a.Email = NormalizeEmail(a.Email)
	codes, err := encodeCodes(a.BackupCodes)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO accounts (id,email,username,first_name,last_name,password_hash,password_changed_at,
		role,auth_provider,is_active,email_verified,verify_token_hash,verify_token_expires,backup_codes,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Email, nullString(a.Username), a.FirstName, a.LastName, a.PasswordHash, a.PasswordChangedAt,
		a.Role, a.AuthProvider, a.IsActive, a.EmailVerified, nullString(a.VerifyTokenHash), a.VerifyTokenExpires,
		codes, a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

// AccountByID fetches an account by id.
func (r *AccountRepo) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id))
}

// AccountByEmail fetches an account by normalized email.
func (r *AccountRepo) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1", NormalizeEmail(email)))
}

// UpdateAccount loads the account row under a row lock, applies fn and
// writes the result back in the same transaction. An error from fn aborts
// the update and is returned unchanged.
func (r *AccountRepo) UpdateAccount(ctx context.Context, id string, fn func(*model.Account) error) (*model.Account, error) {
	var out *model.Account
	err := database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		a, err := scanAccount(tx.QueryRowContext(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1 FOR UPDATE", id))
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := writeAccount(ctx, tx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumeOneTimeToken finds the account whose outstanding token for purpose
// hashes to hash and expires strictly after now, clears that token, applies
// fn and saves, all under one row lock. ErrNotFound covers unknown, reused
// and expired tokens alike.
func (r *AccountRepo) ConsumeOneTimeToken(ctx context.Context, purpose model.TokenPurpose, hash string, now time.Time, fn func(*model.Account) error) (*model.Account, error) {
	hashCol, expCol, err := tokenColumns(purpose)
	if err != nil {
		return nil, err
	}
	var out *model.Account
	err = database.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx database.DBTX) error {
		a, err := scanAccount(tx.QueryRowContext(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE "+hashCol+"=? AND "+expCol+">? LIMIT 1 FOR UPDATE",
			hash, now))
		if err != nil {
			return err
		}
		a.ClearOneTimeToken(purpose)
		if fn != nil {
			if err := fn(a); err != nil {
				return err
			}
		}
		if err := writeAccount(ctx, tx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func writeAccount(ctx context.Context, tx database.DBTX, a *model.Account) error {
	codes, err := encodeCodes(a.BackupCodes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET email=?,username=?,first_name=?,last_name=?,password_hash=?,password_changed_at=?,
		role=?,auth_provider=?,is_active=?,failed_attempts=?,is_locked=?,locked_until=?,
		email_verified=?,verify_token_hash=?,verify_token_expires=?,reset_token_hash=?,reset_token_expires=?,
		two_factor_secret=?,two_factor_enabled=?,backup_codes=?,last_login_at=?,updated_at=?
		WHERE id=?`,
		NormalizeEmail(a.Email), nullString(a.Username), a.FirstName, a.LastName, a.PasswordHash, a.PasswordChangedAt,
		a.Role, a.AuthProvider, a.IsActive, a.FailedAttempts, a.IsLocked, a.LockedUntil,
		a.EmailVerified, nullString(a.VerifyTokenHash), a.VerifyTokenExpires, nullString(a.ResetTokenHash), a.ResetTokenExpires,
		a.TwoFactorSecret, a.TwoFactorEnabled, codes, a.LastLoginAt, a.UpdatedAt,
		a.ID)
	return translate(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a                                      model.Account
		username, verifyHash, resetHash, codes sql.NullString
		pwChanged, lockedUntil, verifyExp      sql.NullTime
		resetExp, lastLogin                    sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &username, &a.FirstName, &a.LastName, &a.PasswordHash, &pwChanged,
		&a.Role, &a.AuthProvider, &a.IsActive, &a.FailedAttempts, &a.IsLocked, &lockedUntil,
		&a.EmailVerified, &verifyHash, &verifyExp, &resetHash, &resetExp,
		&a.TwoFactorSecret, &a.TwoFactorEnabled, &codes, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Username = username.String
	a.VerifyTokenHash = verifyHash.String
	a.ResetTokenHash = resetHash.String
	a.PasswordChangedAt = timePtr(pwChanged)
	a.LockedUntil = timePtr(lockedUntil)
	a.VerifyTokenExpires = timePtr(verifyExp)
	a.ResetTokenExpires = timePtr(resetExp)
	a.LastLoginAt = timePtr(lastLogin)
	if codes.Valid && codes.String != "" {
		if err := json.Unmarshal([]byte(codes.String), &a.BackupCodes); err != nil {
			return nil, fmt.Errorf("decode backup codes for %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func tokenColumns(purpose model.TokenPurpose) (string, string, error) {
	switch purpose {
	case model.PurposeEmailVerification:
		return "verify_token_hash", "verify_token_expires", nil
	case model.PurposePasswordReset:
		return "reset_token_hash", "reset_token_expires", nil
	}
	return "", "", fmt.Errorf("unknown token purpose %q", purpose)
}

func encodeCodes(codes []string) (any, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// translate maps MySQL duplicate-key errors (1062) onto ErrDuplicate.
func translate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrDuplicate
	}
	return err
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
