package service

import (
	"context"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/utils"
)

// SessionRegistry lists and revokes an account's sessions. Every call is
// scoped to the calling account.
type SessionRegistry struct {
	sessions SessionStore
	clock    clock.Clock
}

func NewSessionRegistry(sessions SessionStore, clk clock.Clock) *SessionRegistry {
	return &SessionRegistry{sessions: sessions, clock: clk}
}

// List returns the account's unrevoked, unexpired sessions, newest first.
func (r *SessionRegistry) List(ctx context.Context, accountID string) ([]*model.Session, error) {
	list, err := r.sessions.ActiveSessions(ctx, accountID, r.clock.Now())
	if err != nil {
		return nil, storeErr(err, "")
	}
	return list, nil
}

// RevokeOne revokes a single session. A session that does not belong to
// accountID is reported as NotFound, the same as one that does not exist.
func (r *SessionRegistry) RevokeOne(ctx context.Context, accountID, sessionID string) error {
	if sessionID == "" {
		return apperr.NotFound("Session not found")
	}
	ok, err := r.sessions.RevokeSession(ctx, accountID, sessionID, r.clock.Now())
	if err != nil {
		return storeErr(err, "")
	}
	if !ok {
		return apperr.NotFound("Session not found")
	}
	return nil
}

// RevokeAllExcept revokes every session of the account except the one
// belonging to keepToken. An empty keepToken revokes all of them.
func (r *SessionRegistry) RevokeAllExcept(ctx context.Context, accountID, keepToken string) (int64, error) {
	keep := ""
	if keepToken != "" {
		keep = utils.HashToken(keepToken)
	}
	n, err := r.sessions.RevokeAllSessions(ctx, accountID, keep, r.clock.Now())
	if err != nil {
		return 0, storeErr(err, "")
	}
	return n, nil
}
