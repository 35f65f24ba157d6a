package model

import "time"

// TokenPurpose names what a one-time secret token may be used for. A token
// issued for one purpose is never accepted for another.
type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	ProviderLocal = "local"
)

// Account represents a row in the `accounts` table. It is the aggregate that
// every credential, second-factor, reset and verification operation mutates.
// The struct is internal to the service and repository layers; anything
// returned to a caller goes through AccountView.
//
// Fields:
//
//	PasswordHash      – bcrypt hash; empty for external-identity accounts.
//	FailedAttempts    – consecutive failed password checks since the last success.
//	LockedUntil       – end of the current lockout window (nil when never locked).
//	VerifyTokenHash   – SHA-256 hex of the outstanding email verification token.
//	ResetTokenHash    – SHA-256 hex of the outstanding password reset token.
//	TwoFactorSecret   – base32 TOTP secret; set at setup, kept until disable.
//	BackupCodes       – SHA-256 hex of each unused backup code, in issue order.
type Account struct {
	ID        string
	Email     string
	Username  string
	FirstName string
	LastName  string

	PasswordHash      string
	PasswordChangedAt *time.Time

	Role         string
	AuthProvider string
	IsActive     bool

	FailedAttempts int
	IsLocked       bool
	LockedUntil    *time.Time

	EmailVerified      bool
	VerifyTokenHash    string
	VerifyTokenExpires *time.Time

	ResetTokenHash    string
	ResetTokenExpires *time.Time

	TwoFactorSecret  string
	TwoFactorEnabled bool
	BackupCodes      []string

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LockedAt reports whether a lockout window is still open at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// RegisterFailedLogin counts one failed password check. Reaching threshold
// opens a lockout window of lockFor. A lockout that has already elapsed is
// cleared first so the count restarts from zero. It returns true when this
// failure locked the account.
func (a *Account) RegisterFailedLogin(threshold int, lockFor time.Duration, now time.Time) bool {
	if a.LockedUntil != nil && !a.LockedUntil.After(now) {
		a.ClearLockout()
	}
	a.FailedAttempts++
	if threshold > 0 && a.FailedAttempts >= threshold {
		until := now.Add(lockFor)
		a.IsLocked = true
		a.LockedUntil = &until
		return true
	}
	return false
}

// ClearLockout resets the failure counter and lock state.
func (a *Account) ClearLockout() {
	a.FailedAttempts = 0
	a.IsLocked = false
	a.LockedUntil = nil
}

// ReplacePassword stores an already computed password hash. Lockout and
// profile updates never go through here.
func (a *Account) ReplacePassword(hash string, at time.Time) {
	a.PasswordHash = hash
	a.PasswordChangedAt = &at
}

// SetOneTimeToken records the hash and expiry of a freshly issued token,
// replacing any outstanding token of the same purpose.
func (a *Account) SetOneTimeToken(purpose TokenPurpose, hash string, expires time.Time) {
	switch purpose {
	case PurposeEmailVerification:
		a.VerifyTokenHash, a.VerifyTokenExpires = hash, &expires
	case PurposePasswordReset:
		a.ResetTokenHash, a.ResetTokenExpires = hash, &expires
	}
}

// OneTimeToken returns the stored hash and expiry for purpose.
func (a *Account) OneTimeToken(purpose TokenPurpose) (string, *time.Time) {
	switch purpose {
	case PurposeEmailVerification:
		return a.VerifyTokenHash, a.VerifyTokenExpires
	case PurposePasswordReset:
		return a.ResetTokenHash, a.ResetTokenExpires
	}
	return "", nil
}

// ClearOneTimeToken drops the token of the given purpose.
func (a *Account) ClearOneTimeToken(purpose TokenPurpose) {
	switch purpose {
	case PurposeEmailVerification:
		a.VerifyTokenHash, a.VerifyTokenExpires = "", nil
	case PurposePasswordReset:
		a.ResetTokenHash, a.ResetTokenExpires = "", nil
	}
}

// OneTimeTokenMatches reports whether hash is the outstanding token for
// purpose and its expiry is strictly after now.
func (a *Account) OneTimeTokenMatches(purpose TokenPurpose, hash string, now time.Time) bool {
	stored, exp := a.OneTimeToken(purpose)
	return stored != "" && stored == hash && exp != nil && exp.After(now)
}

// ConsumeBackupCode removes the backup code with the given hash. It returns
// false when no unused code matches.
func (a *Account) ConsumeBackupCode(hash string) bool {
	for i, h := range a.BackupCodes {
		if h == hash {
			a.BackupCodes = append(a.BackupCodes[:i:i], a.BackupCodes[i+1:]...)
			return true
		}
	}
	return false
}

// ResetTwoFactor clears secret, enabled flag and backup codes together.
func (a *Account) ResetTwoFactor() {
	a.TwoFactorSecret = ""
	a.TwoFactorEnabled = false
	a.BackupCodes = nil
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	c := *a
	c.PasswordChangedAt = cloneTime(a.PasswordChangedAt)
	c.LockedUntil = cloneTime(a.LockedUntil)
	c.VerifyTokenExpires = cloneTime(a.VerifyTokenExpires)
	c.ResetTokenExpires = cloneTime(a.ResetTokenExpires)
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	if a.BackupCodes != nil {
		c.BackupCodes = append([]string(nil), a.BackupCodes...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
