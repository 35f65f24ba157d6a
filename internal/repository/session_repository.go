package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/identity-authority/internal/model"
)

const sessionColumns = "id,account_id,token_hash,expires_at,revoked_at,user_agent,ip_address,created_at"

// SessionRepo persists refresh-token sessions (single 'token_hash' column).
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// CreateSession inserts a session row.
func (r *SessionRepo) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, account_id, token_hash, expires_at, user_agent, ip_address, created_at) VALUES (?,?,?,?,?,?,?)",
		s.ID, s.AccountID, s.TokenHash, s.ExpiresAt, s.UserAgent, s.IPAddress, s.CreatedAt)
	return translate(err)
}

// SessionByTokenHash returns the session for a token hash whether or not it
// is still valid; callers check ValidAt.
func (r *SessionRepo) SessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE token_hash=? LIMIT 1", tokenHash))
}

// ActiveSessions lists the account's non-revoked, unexpired sessions,
// newest first.
func (r *SessionRepo) ActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE account_id=? AND revoked_at IS NULL AND expires_at>? ORDER BY created_at DESC, id DESC",
		accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RevokeSession revokes one session owned by accountID. It reports false
// when no such session belongs to the account. Revoking an already revoked
// session keeps its original timestamp and still reports true.
func (r *SessionRepo) RevokeSession(ctx context.Context, accountID, sessionID string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=COALESCE(revoked_at, ?) WHERE id=? AND account_id=?",
		now, sessionID, accountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeByTokenHash marks a session as revoked. Unknown or already revoked
// hashes are not an error.
func (r *SessionRepo) RevokeByTokenHash(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		now, tokenHash)
	return err
}

// RevokeAllSessions revokes every active session of the account except the
// one whose hash is exceptHash (empty keeps none).
func (r *SessionRepo) RevokeAllSessions(ctx context.Context, accountID, exceptHash string, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=? WHERE account_id=? AND revoked_at IS NULL AND token_hash<>?",
		now, accountID, exceptHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStaleSessions removes sessions that expired or were revoked before
// cutoff.
func (r *SessionRepo) DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at<? OR (revoked_at IS NOT NULL AND revoked_at<?)",
		cutoff, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		s         model.Session
		revokedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.ExpiresAt, &revokedAt, &s.UserAgent, &s.IPAddress, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.RevokedAt = timePtr(revokedAt)
	return &s, nil
}
