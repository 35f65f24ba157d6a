package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/config"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
	"github.com/iliyamo/identity-authority/internal/utils"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgLocked             = "Account is locked due to multiple failed login attempts. Please try again later."
	msgInactive           = "Account is deactivated. Please contact support."
)

// errAccountLocked aborts a locked update when a concurrent request locked
// the account first.
var errAccountLocked = apperr.Locked(msgLocked)

// RegisterInput is a registration request.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// ProfileInput carries optional profile changes; nil fields are left alone.
type ProfileInput struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// LoginResult is either a full token pair or, for accounts with a second
// factor, an intermediate token that only the 2FA completion step accepts.
type LoginResult struct {
	Account     *model.Account
	Tokens      *TokenPair
	Requires2FA bool
	MFAToken    *utils.SignedToken
}

// Authenticator owns the account lifecycle around passwords: registration,
// login with lockout, password change and reset, email verification,
// profile updates and soft deletion.
type Authenticator struct {
	accounts AccountStore
	tokens   *TokenIssuer
	sessions *SessionRegistry
	codec    *SecretCodec
	notifier *Notifier
	clock    clock.Clock
	log      logging.Logger
	sec      config.SecurityConfig
	hasher   passwordHasher
	bg       *background
}

func NewAuthenticator(accounts AccountStore, tokens *TokenIssuer, sessions *SessionRegistry, codec *SecretCodec, notifier *Notifier,
	clk clock.Clock, log logging.Logger, sec config.SecurityConfig, bcryptCost int) (*Authenticator, error) {
	hasher, err := newPasswordHasher(bcryptCost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		codec:    codec,
		notifier: notifier,
		clock:    clk,
		log:      log,
		sec:      sec,
		hasher:   hasher,
		bg:       &background{timeout: 10 * time.Second, log: log},
	}, nil
}

// Wait blocks until pending reset and verification mails are handed off.
func (s *Authenticator) Wait() { s.bg.Wait() }

// Register creates an unverified local account and mails a verification
// link. A taken email or username is a Conflict.
func (s *Authenticator) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	var p problems
	switch {
	case in.Email == "":
		p.add("Email is required")
	case !validEmail(in.Email):
		p.add("Invalid email format")
	}
	switch {
	case in.Password == "":
		p.add("Password is required")
	case len(in.Password) > maxPasswordBytes:
		p.add(msgLongPassword)
	case !strongPassword(in.Password):
		p.add(msgWeakPassword)
	}
	if in.Username != "" && !validUsername(in.Username) {
		p.add(msgBadUsername)
	}
	if err := p.err(); err != nil {
		return nil, err
	}

	if _, err := s.accounts.AccountByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Conflict("Email already in use")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err, "")
	}

	hash, err := s.hasher.hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	verify, err := s.codec.Issue(model.PurposeEmailVerification)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "issue verification token", err)
	}

	now := s.clock.Now()
	a := &model.Account{
		ID:           newID(),
		Email:        in.Email,
		Username:     in.Username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         model.RoleUser,
		AuthProvider: model.ProviderLocal,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a.ReplacePassword(hash, now)
	a.SetOneTimeToken(model.PurposeEmailVerification, verify.Hash, verify.Expires)

	if err := s.accounts.CreateAccount(ctx, a); err != nil {
		msg := "Email already in use"
		if in.Username != "" {
			msg = "Email or username already in use"
		}
		return nil, storeErr(err, msg)
	}
	s.log.Info(ctx, "account registered", "account_id", a.ID)

	s.notifier.SendVerification(ctx, a, verify.Plaintext, s.codec.TTL(model.PurposeEmailVerification))
	return a, nil
}

// Login checks email and password. The lock check comes before the
// password check; five consecutive failures lock the account. A correct
// password clears the failure state. Accounts with an enabled second
// factor get an intermediate token instead of a token pair.
func (s *Authenticator) Login(ctx context.Context, email, password string, meta ClientMeta) (LoginResult, error) {
	email = repository.NormalizeEmail(email)
	var p problems
	if email == "" {
		p.add("Email is required")
	}
	if password == "" {
		p.add("Password is required")
	}
	if err := p.err(); err != nil {
		return LoginResult{}, err
	}

	a, err := s.accounts.AccountByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		// Same cost as a real comparison so timing does not reveal the miss.
		if _, err := s.hasher.verify(ctx, "", password); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return LoginResult{}, storeErr(err, "")
	}

	if a.LockedAt(s.clock.Now()) {
		return LoginResult{}, apperr.Locked(msgLocked)
	}

	ok, err := s.hasher.verify(ctx, a.PasswordHash, password)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		if err := s.recordFailure(ctx, a.ID); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if !a.IsActive {
		return LoginResult{}, apperr.Forbidden(msgInactive)
	}

	a, err = s.accounts.UpdateAccount(ctx, a.ID, func(a *model.Account) error {
		now := s.clock.Now()
		if a.LockedAt(now) {
			return errAccountLocked
		}
		a.ClearLockout()
		if !a.TwoFactorEnabled {
			a.LastLoginAt = &now
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return LoginResult{}, storeErr(err, "")
	}

	if a.TwoFactorEnabled {
		tok, err := s.tokens.IssueMFAToken(ctx, a)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Account: a, Requires2FA: true, MFAToken: &tok}, nil
	}

	pair, err := s.tokens.IssuePair(ctx, a, meta)
	if err != nil {
		return LoginResult{}, err
	}
	s.log.Info(ctx, "login succeeded", "account_id", a.ID, "session_id", pair.SessionID)
	return LoginResult{Account: a, Tokens: &pair}, nil
}

// recordFailure counts one failed password check under the account lock.
// The password hash is never touched here. A failed write is returned to
// the caller as Unavailable.
func (s *Authenticator) recordFailure(ctx context.Context, accountID string) error {
	var locked bool
	_, err := s.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		now := s.clock.Now()
		if a.LockedAt(now) {
			return nil
		}
		locked = a.RegisterFailedLogin(s.sec.LockoutThreshold, s.sec.LockoutDuration, now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "record failed login", "account_id", accountID, "err", err)
		return storeErr(err, "")
	}
	if locked {
		s.log.Warn(ctx, "account locked after repeated failures", "account_id", accountID)
	}
	return nil
}

// Me returns the account behind an authenticated request.
func (s *Authenticator) Me(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := s.accounts.AccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, storeErr(err, "")
	}
	return a, nil
}

// ChangePassword replaces the password after checking the current one and
// revokes every other session. keepRefresh, when set, is the caller's own
// refresh token and stays valid.
func (s *Authenticator) ChangePassword(ctx context.Context, accountID, current, next, keepRefresh string) error {
	var p problems
	if current == "" {
		p.add("Current password is required")
	}
	switch {
	case next == "":
		p.add("New password is required")
	case len(next) > maxPasswordBytes:
		p.add("New " + strings.ToLower(msgLongPassword[:1]) + msgLongPassword[1:])
	case !strongPassword(next):
		p.add("New " + strings.ToLower(msgWeakPassword[:1]) + msgWeakPassword[1:])
	}
	if current != "" && current == next {
		p.add("New password must be different from current password")
	}
	if err := p.err(); err != nil {
		return err
	}

	a, err := s.Me(ctx, accountID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.verify(ctx, a.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Unauthorized("Current password is incorrect")
	}
	if err := s.setPassword(ctx, accountID, next); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAllExcept(ctx, accountID, keepRefresh); err != nil {
		return err
	}
	s.log.Info(ctx, "password changed", "account_id", accountID)
	return nil
}

// setPassword is the single path that stores a new password. The hash is
// computed before the account lock is taken.
func (s *Authenticator) setPassword(ctx context.Context, accountID, plain string) error {
	hash, err := s.hasher.hash(ctx, plain)
	if err != nil {
		return err
	}
	_, err = s.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		now := s.clock.Now()
		a.ReplacePassword(hash, now)
		a.UpdatedAt = now
		return nil
	})
	return storeErr(err, "")
}

// UpdateProfile changes username and names. A taken username is a
// Conflict.
func (s *Authenticator) UpdateProfile(ctx context.Context, accountID string, in ProfileInput) (*model.Account, error) {
	var p problems
	if in.Username != nil {
		u := strings.TrimSpace(*in.Username)
		in.Username = &u
		if !validUsername(u) {
			p.add(msgBadUsername)
		}
	}
	if in.FirstName != nil && !validName(*in.FirstName) {
		p.add("First name must be between 1 and 50 characters")
	}
	if in.LastName != nil && !validName(*in.LastName) {
		p.add("Last name must be between 1 and 50 characters")
	}
	if err := p.err(); err != nil {
		return nil, err
	}

	a, err := s.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if in.Username != nil {
			a.Username = *in.Username
		}
		if in.FirstName != nil {
			a.FirstName = *in.FirstName
		}
		if in.LastName != nil {
			a.LastName = *in.LastName
		}
		a.UpdatedAt = s.clock.Now()
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, storeErr(err, "Username already taken")
	}
	return a, nil
}

// DeleteAccount soft-disables the account after a password check and
// revokes all of its sessions. Rows are never removed.
func (s *Authenticator) DeleteAccount(ctx context.Context, accountID, password string) error {
	if password == "" {
		return apperr.InvalidInput("Password is required to delete account")
	}
	a, err := s.Me(ctx, accountID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.verify(ctx, a.PasswordHash, password)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Unauthorized("Password is incorrect")
	}
	if _, err := s.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		a.IsActive = false
		a.UpdatedAt = s.clock.Now()
		return nil
	}); err != nil {
		return storeErr(err, "")
	}
	if _, err := s.sessions.RevokeAllExcept(ctx, accountID, ""); err != nil {
		return err
	}
	s.log.Info(ctx, "account deactivated", "account_id", accountID)
	return nil
}
