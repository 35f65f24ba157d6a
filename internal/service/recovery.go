package service

import (
	"context"
	"errors"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
)

const (
	// MsgResetRequested is the only answer a reset request ever gets.
	MsgResetRequested = "If an account exists, a password reset link has been sent."
	// MsgVerificationRequested is the only answer a resend request ever gets.
	MsgVerificationRequested = "If an account exists and is not yet verified, a verification link has been sent."
)

// RequestPasswordReset issues a reset token for the account behind email
// and mails the link. Whether the account exists is never revealed: unknown
// and inactive accounts return nil as well, and issuing runs in the
// background so the request costs one lookup either way. A new token
// replaces any outstanding one.
func (s *Authenticator) RequestPasswordReset(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return apperr.InvalidInput("Email is required")
	}
	a, err := s.accounts.AccountByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "")
	}
	if !a.IsActive {
		return nil
	}
	s.bg.Go(ctx, "password_reset", func(ctx context.Context) error {
		return s.issueAndSend(ctx, a.ID, model.PurposePasswordReset, nil)
	})
	return nil
}

// errHoldToken aborts a token lookup so the token stays redeemable.
var errHoldToken = errors.New("hold token")

// ResetPassword redeems a reset token, stores the new password, clears any
// lockout and revokes every session of the account. Sessions are revoked
// before the token is spent, so a failed revocation leaves the token valid
// for a retry.
func (s *Authenticator) ResetPassword(ctx context.Context, token, password string) error {
	switch {
	case password == "":
		return apperr.InvalidInput("Password is required")
	case len(password) > maxPasswordBytes:
		return apperr.InvalidInput(msgLongPassword)
	case !strongPassword(password):
		return apperr.InvalidInput(msgWeakPassword)
	}
	hash, err := s.hasher.hash(ctx, password)
	if err != nil {
		return err
	}

	var accountID string
	_, err = s.codec.Verify(ctx, token, model.PurposePasswordReset, func(a *model.Account) error {
		accountID = a.ID
		return errHoldToken
	})
	switch {
	case errors.Is(err, ErrSecretTokenNotFound):
		return apperr.InvalidInput("Invalid or expired reset token")
	case err != nil && !errors.Is(err, errHoldToken):
		return storeErr(err, "")
	}
	revoked, err := s.sessions.RevokeAllExcept(ctx, accountID, "")
	if err != nil {
		s.log.Error(ctx, "revoke sessions before password reset", "account_id", accountID, "err", err)
		return err
	}

	a, err := s.codec.Verify(ctx, token, model.PurposePasswordReset, func(a *model.Account) error {
		now := s.clock.Now()
		a.ReplacePassword(hash, now)
		a.ClearLockout()
		a.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrSecretTokenNotFound) {
		return apperr.InvalidInput("Invalid or expired reset token")
	}
	if err != nil {
		return storeErr(err, "")
	}
	// Sessions opened with the old password while the token was held.
	n, err := s.sessions.RevokeAllExcept(ctx, a.ID, "")
	if err != nil {
		s.log.Error(ctx, "revoke sessions after password reset", "account_id", a.ID, "err", err)
		return err
	}
	s.log.Info(ctx, "password reset", "account_id", a.ID, "sessions_revoked", revoked+n)
	return nil
}

// RequestEmailVerification re-issues a verification token for an active,
// unverified account. Like RequestPasswordReset it answers the same way
// whether or not such an account exists.
func (s *Authenticator) RequestEmailVerification(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return apperr.InvalidInput("Email is required")
	}
	a, err := s.accounts.AccountByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "")
	}
	if !a.IsActive || a.EmailVerified {
		return nil
	}
	s.bg.Go(ctx, "email_verification", func(ctx context.Context) error {
		return s.issueAndSend(ctx, a.ID, model.PurposeEmailVerification, func(a *model.Account) bool {
			return !a.EmailVerified
		})
	})
	return nil
}

// VerifyEmail redeems a verification token and marks the email verified.
func (s *Authenticator) VerifyEmail(ctx context.Context, token string) (*model.Account, error) {
	a, err := s.codec.Verify(ctx, token, model.PurposeEmailVerification, func(a *model.Account) error {
		a.EmailVerified = true
		a.UpdatedAt = s.clock.Now()
		return nil
	})
	if errors.Is(err, ErrSecretTokenNotFound) {
		return nil, apperr.InvalidInput("Invalid or expired verification token")
	}
	if err != nil {
		return nil, storeErr(err, "")
	}
	s.log.Info(ctx, "email verified", "account_id", a.ID)
	return a, nil
}

// issueAndSend stores a fresh token for purpose on the account and mails
// it. eligible, when set, is re-checked under the lock; an ineligible
// account is skipped silently.
func (s *Authenticator) issueAndSend(ctx context.Context, accountID string, purpose model.TokenPurpose, eligible func(*model.Account) bool) error {
	tok, err := s.codec.Issue(purpose)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "issue token", err)
	}
	skipped := false
	a, err := s.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if eligible != nil && !eligible(a) {
			skipped = true
			return nil
		}
		a.SetOneTimeToken(purpose, tok.Hash, tok.Expires)
		a.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return storeErr(err, "")
	}
	if skipped {
		return nil
	}
	ttl := s.codec.TTL(purpose)
	switch purpose {
	case model.PurposePasswordReset:
		s.notifier.SendPasswordReset(ctx, a, tok.Plaintext, ttl)
	case model.PurposeEmailVerification:
		s.notifier.SendVerification(ctx, a, tok.Plaintext, ttl)
	}
	return nil
}
