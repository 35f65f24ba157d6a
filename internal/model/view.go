package model

import "time"

// AccountView is the only projection of an Account handed to callers. It
// never carries the password hash, token hashes, the TOTP secret or backup
// codes.
type AccountView struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username,omitempty"`
	FirstName        string     `json:"firstName,omitempty"`
	LastName         string     `json:"lastName,omitempty"`
	Role             string     `json:"role"`
	AuthProvider     string     `json:"authProvider"`
	IsActive         bool       `json:"isActive"`
	EmailVerified    bool       `json:"isEmailVerified"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func NewAccountView(a *Account) AccountView {
	return AccountView{
		ID:               a.ID,
		Email:            a.Email,
		Username:         a.Username,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Role:             a.Role,
		AuthProvider:     a.AuthProvider,
		IsActive:         a.IsActive,
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		LastLoginAt:      a.LastLoginAt,
		CreatedAt:        a.CreatedAt,
	}
}

// SessionView is the caller-facing projection of a Session.
type SessionView struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewSessionView(s *Session) SessionView {
	return SessionView{
		ID:        s.ID,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
