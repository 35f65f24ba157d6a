package config

import "time"

// SecurityConfig tunes the credential state machine: lockout policy,
// one-time token lifetimes and the second factor.
type SecurityConfig struct {
	LockoutThreshold int           // consecutive failures that lock an account
	LockoutDuration  time.Duration // how long a lockout lasts
	ResetTokenTTL    time.Duration // password reset token lifetime
	VerifyTokenTTL   time.Duration // email verification token lifetime
	TOTPIssuer       string        // issuer shown in authenticator apps
	TOTPSkew         uint          // accepted time steps on either side of now
	BackupCodeCount  int           // backup codes generated at 2FA setup
	MFAMaxAttempts   int           // wrong codes allowed per 2FA login challenge
}

// LoadSecurityConfig reads the security settings, falling back to the
// defaults below for anything unset or unparsable.
func LoadSecurityConfig() SecurityConfig {
	cfg := SecurityConfig{
		LockoutThreshold: envInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  envDur("LOCKOUT_DURATION", 30*time.Minute),
		ResetTokenTTL:    envDur("RESET_TOKEN_TTL", 10*time.Minute),
		VerifyTokenTTL:   envDur("VERIFY_TOKEN_TTL", 24*time.Hour),
		TOTPIssuer:       envStr("TOTP_ISSUER", envStr("TWO_FACTOR_APP_NAME", "Identity Authority")),
		TOTPSkew:         uint(envInt("TOTP_SKEW", 2)),
		BackupCodeCount:  envInt("BACKUP_CODE_COUNT", 10),
		MFAMaxAttempts:   envInt("MFA_MAX_ATTEMPTS", 5),
	}
	if cfg.LockoutThreshold < 1 {
		cfg.LockoutThreshold = 1
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 30 * time.Minute
	}
	if cfg.BackupCodeCount < 1 {
		cfg.BackupCodeCount = 10
	}
	if cfg.MFAMaxAttempts < 1 {
		cfg.MFAMaxAttempts = 5
	}
	return cfg
}

// DefaultSecurityConfig returns the settings LoadSecurityConfig yields with
// an empty environment.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
		ResetTokenTTL:    10 * time.Minute,
		VerifyTokenTTL:   24 * time.Hour,
		TOTPIssuer:       "Identity Authority",
		TOTPSkew:         2,
		BackupCodeCount:  10,
		MFAMaxAttempts:   5,
	}
}
