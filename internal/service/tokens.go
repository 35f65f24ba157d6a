package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
	"github.com/iliyamo/identity-authority/internal/utils"
)

const (
	msgInvalidRefresh = "Invalid or expired refresh token"
	msgInvalidMFA     = "Invalid or expired 2FA token"
)

// TokenConfig holds signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret   []byte
	RefreshSecret  []byte
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	MFATTL         time.Duration
	MFAMaxAttempts int
}

// ClientMeta describes where a login came from; it is stored on the session.
type ClientMeta struct {
	UserAgent string
	IP        string
}

// TokenPair is the result of a completed authentication.
type TokenPair struct {
	Access    utils.SignedToken
	Refresh   utils.SignedToken
	SessionID string
}

// TokenIssuer mints access, refresh and 2FA intermediate tokens and owns
// the persisted session behind every refresh token.
type TokenIssuer struct {
	cfg        TokenConfig
	accounts   AccountStore
	sessions   SessionStore
	challenges ChallengeStore
	clock      clock.Clock
	log        logging.Logger
}

func NewTokenIssuer(cfg TokenConfig, accounts AccountStore, sessions SessionStore, challenges ChallengeStore, clk clock.Clock, log logging.Logger) *TokenIssuer {
	if cfg.MFAMaxAttempts < 1 {
		cfg.MFAMaxAttempts = 5
	}
	return &TokenIssuer{cfg: cfg, accounts: accounts, sessions: sessions, challenges: challenges, clock: clk, log: log}
}

// IssueAccessToken signs a short lived access token for a. It needs no
// store access and can be verified offline.
func (t *TokenIssuer) IssueAccessToken(a *model.Account) (utils.SignedToken, error) {
	tok, err := utils.NewAccessToken(t.cfg.AccessSecret, a.ID, a.Role, a.Email, t.clock.Now(), t.cfg.AccessTTL)
	if err != nil {
		return utils.SignedToken{}, apperr.Wrap(apperr.KindInternal, "issue access token", err)
	}
	return tok, nil
}

// IssueRefreshToken signs a refresh token and persists its session. The
// session id is the token's jti and its expiry matches the token's.
func (t *TokenIssuer) IssueRefreshToken(ctx context.Context, a *model.Account, meta ClientMeta) (utils.SignedToken, error) {
	now := t.clock.Now()
	tok, err := utils.NewRefreshToken(t.cfg.RefreshSecret, a.ID, now, t.cfg.RefreshTTL)
	if err != nil {
		return utils.SignedToken{}, apperr.Wrap(apperr.KindInternal, "issue refresh token", err)
	}
	s := &model.Session{
		ID:        tok.ID,
		AccountID: a.ID,
		TokenHash: utils.HashToken(tok.Token),
		ExpiresAt: tok.Exp,
		UserAgent: truncate(meta.UserAgent, 255),
		IPAddress: truncate(meta.IP, 64),
		CreatedAt: now,
	}
	if err := t.sessions.CreateSession(ctx, s); err != nil {
		return utils.SignedToken{}, storeErr(err, "session already exists")
	}
	return tok, nil
}

// IssuePair issues an access token and a persisted refresh token.
func (t *TokenIssuer) IssuePair(ctx context.Context, a *model.Account, meta ClientMeta) (TokenPair, error) {
	access, err := t.IssueAccessToken(a)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.IssueRefreshToken(ctx, a, meta)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh, SessionID: refresh.ID}, nil
}

// Refresh exchanges a refresh token for a new access token. The signature
// alone is not enough: the session must exist, belong to the token's
// subject, be unrevoked and unexpired, and the account must still be
// active. The refresh token itself is not rotated.
func (t *TokenIssuer) Refresh(ctx context.Context, raw string) (utils.SignedToken, *model.Account, error) {
	now := t.clock.Now()
	claims, err := utils.ParseToken(t.cfg.RefreshSecret, raw, utils.KindRefresh, now)
	if err != nil {
		return utils.SignedToken{}, nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	s, err := t.sessions.SessionByTokenHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return utils.SignedToken{}, nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	if err != nil {
		return utils.SignedToken{}, nil, storeErr(err, "")
	}
	if !s.ValidAt(now) || s.AccountID != claims.Subject {
		return utils.SignedToken{}, nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	a, err := t.accounts.AccountByID(ctx, s.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return utils.SignedToken{}, nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	if err != nil {
		return utils.SignedToken{}, nil, storeErr(err, "")
	}
	if !a.IsActive {
		return utils.SignedToken{}, nil, apperr.Unauthorized(msgInvalidRefresh)
	}
	access, err := t.IssueAccessToken(a)
	if err != nil {
		return utils.SignedToken{}, nil, err
	}
	return access, a, nil
}

// Revoke marks the session behind raw as revoked. Unknown, malformed and
// already revoked tokens are not an error.
func (t *TokenIssuer) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return storeErr(t.sessions.RevokeByTokenHash(ctx, utils.HashToken(raw), t.clock.Now()), "")
}

// Logout revokes the session behind raw when it belongs to accountID.
// Tokens of other accounts, unknown and already revoked tokens are ignored.
func (t *TokenIssuer) Logout(ctx context.Context, accountID, raw string) error {
	if raw == "" {
		return nil
	}
	s, err := t.sessions.SessionByTokenHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "")
	}
	if s.AccountID != accountID || s.Revoked() {
		return nil
	}
	_, err = t.sessions.RevokeSession(ctx, accountID, s.ID, t.clock.Now())
	return storeErr(err, "")
}

// IssueMFAToken signs the intermediate token a password login returns when
// the account has a second factor, and opens the matching challenge.
func (t *TokenIssuer) IssueMFAToken(ctx context.Context, a *model.Account) (utils.SignedToken, error) {
	tok, err := utils.NewMFAToken(t.cfg.AccessSecret, a.ID, t.clock.Now(), t.cfg.MFATTL)
	if err != nil {
		return utils.SignedToken{}, apperr.Wrap(apperr.KindInternal, "issue 2FA token", err)
	}
	if err := t.challenges.Put(ctx, tok.ID, a.ID, t.cfg.MFATTL); err != nil {
		return utils.SignedToken{}, storeErr(err, "")
	}
	return tok, nil
}

// BeginMFAAttempt validates an intermediate token and records one attempt
// on its challenge. It returns the account id the token was issued for.
// Past the attempt limit the challenge is closed and the user has to log
// in again.
func (t *TokenIssuer) BeginMFAAttempt(ctx context.Context, raw string) (accountID, challengeID string, err error) {
	claims, err := utils.ParseToken(t.cfg.AccessSecret, raw, utils.KindMFA, t.clock.Now())
	if err != nil {
		return "", "", apperr.Unauthorized(msgInvalidMFA)
	}
	ch, err := t.challenges.Attempt(ctx, claims.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", "", apperr.Unauthorized(msgInvalidMFA)
	}
	if err != nil {
		return "", "", storeErr(err, "")
	}
	if ch.AccountID != claims.Subject {
		return "", "", apperr.Unauthorized(msgInvalidMFA)
	}
	if ch.Attempts > t.cfg.MFAMaxAttempts {
		if _, err := t.challenges.Consume(ctx, claims.ID); err != nil {
			t.log.Warn(ctx, "close exhausted 2FA challenge", "err", err)
		}
		return "", "", apperr.Unauthorized("Too many invalid codes. Please login again.")
	}
	return claims.Subject, claims.ID, nil
}

// FinishMFA closes a challenge after a correct code. Only one caller can
// finish a given challenge.
func (t *TokenIssuer) FinishMFA(ctx context.Context, challengeID string) error {
	ok, err := t.challenges.Consume(ctx, challengeID)
	if err != nil {
		return storeErr(err, "")
	}
	if !ok {
		return apperr.Unauthorized(msgInvalidMFA)
	}
	return nil
}

// Authenticate resolves a bearer access token to its account. Intermediate
// 2FA tokens are refused with a dedicated message.
func (t *TokenIssuer) Authenticate(ctx context.Context, raw string) (*model.Account, error) {
	if raw == "" {
		return nil, apperr.Unauthorized("Access token missing. Please login.")
	}
	claims, err := utils.ParseToken(t.cfg.AccessSecret, raw, utils.KindAccess, t.clock.Now())
	if errors.Is(err, utils.ErrTokenKind) {
		return nil, apperr.Unauthorized("Please complete 2FA verification")
	}
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired token. Please login again.")
	}
	a, err := t.accounts.AccountByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("User not found. Please login again.")
	}
	if err != nil {
		return nil, storeErr(err, "")
	}
	if !a.IsActive {
		return nil, apperr.Forbidden("Account is deactivated. Please contact support.")
	}
	return a, nil
}

func newID() string { return uuid.NewString() }

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
