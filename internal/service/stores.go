// Package service implements the credential and session state machine:
// password authentication with lockout, signed token issuance backed by
// persisted sessions, TOTP second factor with backup codes, and single-use
// reset and verification tokens. Every failure that leaves this package is
// an *apperr.Error.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
)

// AccountStore persists accounts. UpdateAccount and ConsumeOneTimeToken
// apply their mutation under a per-account lock so concurrent requests on
// one account serialize.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	AccountByID(ctx context.Context, id string) (*model.Account, error)
	AccountByEmail(ctx context.Context, email string) (*model.Account, error)
	UpdateAccount(ctx context.Context, id string, fn func(*model.Account) error) (*model.Account, error)
	ConsumeOneTimeToken(ctx context.Context, purpose model.TokenPurpose, hash string, now time.Time, fn func(*model.Account) error) (*model.Account, error)
}

// SessionStore persists refresh-token sessions keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	SessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	ActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*model.Session, error)
	RevokeSession(ctx context.Context, accountID, sessionID string, now time.Time) (bool, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) error
	RevokeAllSessions(ctx context.Context, accountID, exceptHash string, now time.Time) (int64, error)
	DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChallengeStore tracks pending second-factor logins by intermediate token id.
type ChallengeStore interface {
	Put(ctx context.Context, id, accountID string, ttl time.Duration) error
	Attempt(ctx context.Context, id string) (repository.Challenge, error)
	Consume(ctx context.Context, id string) (bool, error)
}

// storeErr classifies a store failure. Classified errors pass through,
// unique-key violations become Conflict and anything else is a dependency
// failure.
func storeErr(err error, conflictMsg string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.Wrap(apperr.KindConflict, conflictMsg, err)
	}
	return apperr.Unavailable(err)
}
