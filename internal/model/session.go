package model

import "time"

// Session models an entry in the `sessions` table: one persisted refresh
// token. The signed token itself is not stored; only its SHA-256 hash.
//
// Fields:
//
//	ID        – primary key, also the refresh token's jti.
//	AccountID – owner of the session.
//	TokenHash – SHA-256 hex digest of the signed refresh token.
//	ExpiresAt – same expiry as the signed token.
//	RevokedAt – when the session was revoked (nil while active).
//	UserAgent – originating client descriptor.
//	IPAddress – network origin.
type Session struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent string
	IPAddress string
	CreatedAt time.Time
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// ValidAt reports whether the session may still mint access tokens.
func (s *Session) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
