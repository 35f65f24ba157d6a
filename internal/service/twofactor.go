package service

import (
	"context"
	"errors"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/config"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
	"github.com/iliyamo/identity-authority/internal/utils"
)

const msgInvalidCode = "Invalid verification code"

var errInvalidCode = apperr.Unauthorized(msgInvalidCode)

// SetupResult is returned once by Setup. The plaintext backup codes are
// never shown again.
type SetupResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioningUri"`
	BackupCodes     []string `json:"backupCodes"`
}

// TwoFactor verifies TOTP codes and backup codes and drives the 2FA
// lifecycle: setup, enable, disable and login completion.
type TwoFactor struct {
	accounts AccountStore
	tokens   *TokenIssuer
	clock    clock.Clock
	log      logging.Logger
	sec      config.SecurityConfig
}

func NewTwoFactor(accounts AccountStore, tokens *TokenIssuer, clk clock.Clock, log logging.Logger, sec config.SecurityConfig) *TwoFactor {
	return &TwoFactor{accounts: accounts, tokens: tokens, clock: clk, log: log, sec: sec}
}

// Setup generates a TOTP secret and a fresh set of backup codes and stores
// them without enabling 2FA. Running it again before Enable replaces both.
func (t *TwoFactor) Setup(ctx context.Context, accountID string) (SetupResult, error) {
	a, err := t.load(ctx, accountID)
	if err != nil {
		return SetupResult{}, err
	}
	if a.TwoFactorEnabled {
		return SetupResult{}, apperr.Conflict("2FA is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.sec.TOTPIssuer,
		AccountName: a.Email,
	})
	if err != nil {
		return SetupResult{}, apperr.Wrap(apperr.KindInternal, "generate TOTP secret", err)
	}
	codes := make([]string, 0, t.sec.BackupCodeCount)
	hashes := make([]string, 0, t.sec.BackupCodeCount)
	for i := 0; i < t.sec.BackupCodeCount; i++ {
		c, err := utils.NewBackupCode()
		if err != nil {
			return SetupResult{}, apperr.Wrap(apperr.KindInternal, "generate backup code", err)
		}
		codes = append(codes, c)
		hashes = append(hashes, utils.HashToken(c))
	}

	_, err = t.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if a.TwoFactorEnabled {
			return apperr.Conflict("2FA is already enabled")
		}
		a.TwoFactorSecret = key.Secret()
		a.BackupCodes = hashes
		a.UpdatedAt = t.clock.Now()
		return nil
	})
	if err != nil {
		return SetupResult{}, storeErr(err, "")
	}
	return SetupResult{Secret: key.Secret(), ProvisioningURI: key.URL(), BackupCodes: codes}, nil
}

// Enable turns 2FA on after the user proves the authenticator app works.
// Only a TOTP code is accepted here.
func (t *TwoFactor) Enable(ctx context.Context, accountID, code string) error {
	code = normalizeCode(code)
	if code == "" {
		return apperr.InvalidInput("Verification code is required")
	}
	_, err := t.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if a.TwoFactorEnabled {
			return apperr.Conflict("2FA is already enabled")
		}
		if a.TwoFactorSecret == "" {
			return apperr.InvalidInput("2FA setup not initiated")
		}
		if !t.validTOTP(a.TwoFactorSecret, code) {
			return errInvalidCode
		}
		a.TwoFactorEnabled = true
		a.UpdatedAt = t.clock.Now()
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return storeErr(err, "")
	}
	t.log.Info(ctx, "2FA enabled", "account_id", accountID)
	return nil
}

// Verify accepts a current TOTP code or, failing that, an unused backup
// code, which is consumed. It reports whether a backup code was used.
func (t *TwoFactor) Verify(ctx context.Context, accountID, code string) (bool, error) {
	code = normalizeCode(code)
	if code == "" {
		return false, apperr.InvalidInput("Verification code is required")
	}
	a, err := t.load(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !a.TwoFactorEnabled || a.TwoFactorSecret == "" {
		return false, apperr.InvalidInput("2FA is not enabled")
	}
	if !validCodeFormat(code) {
		return false, errInvalidCode
	}
	if t.validTOTP(a.TwoFactorSecret, code) {
		return false, nil
	}
	_, err = t.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if !a.ConsumeBackupCode(utils.HashToken(code)) {
			return errInvalidCode
		}
		a.UpdatedAt = t.clock.Now()
		return nil
	})
	if err != nil {
		return false, storeErr(err, "")
	}
	t.log.Info(ctx, "backup code used", "account_id", accountID)
	return true, nil
}

// Disable turns 2FA off. It needs a valid TOTP or backup code and clears
// secret, enabled flag and backup codes in one update.
func (t *TwoFactor) Disable(ctx context.Context, accountID, code string) error {
	code = normalizeCode(code)
	if code == "" {
		return apperr.InvalidInput("Verification code is required")
	}
	_, err := t.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if !a.TwoFactorEnabled {
			return apperr.InvalidInput("2FA is not enabled")
		}
		if !validCodeFormat(code) {
			return errInvalidCode
		}
		if !t.validTOTP(a.TwoFactorSecret, code) && !a.ConsumeBackupCode(utils.HashToken(code)) {
			return errInvalidCode
		}
		a.ResetTwoFactor()
		a.UpdatedAt = t.clock.Now()
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return storeErr(err, "")
	}
	t.log.Info(ctx, "2FA disabled", "account_id", accountID)
	return nil
}

// CompleteLogin finishes a password login for an account with 2FA: it
// checks the intermediate token, verifies the code and issues the token
// pair. A wrong code leaves the challenge open until its attempt limit.
func (t *TwoFactor) CompleteLogin(ctx context.Context, mfaToken, code string, meta ClientMeta) (*model.Account, TokenPair, error) {
	if mfaToken == "" || normalizeCode(code) == "" {
		return nil, TokenPair{}, apperr.InvalidInput("Temporary token and code are required")
	}
	accountID, challengeID, err := t.tokens.BeginMFAAttempt(ctx, mfaToken)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if _, err := t.Verify(ctx, accountID, code); err != nil {
		return nil, TokenPair{}, err
	}
	if err := t.tokens.FinishMFA(ctx, challengeID); err != nil {
		return nil, TokenPair{}, err
	}

	a, err := t.accounts.UpdateAccount(ctx, accountID, func(a *model.Account) error {
		if !a.IsActive {
			return apperr.Forbidden(msgInactive)
		}
		now := t.clock.Now()
		a.LastLoginAt = &now
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, TokenPair{}, storeErr(err, "")
	}
	pair, err := t.tokens.IssuePair(ctx, a, meta)
	if err != nil {
		return nil, TokenPair{}, err
	}
	t.log.Info(ctx, "2FA login completed", "account_id", a.ID, "session_id", pair.SessionID)
	return a, pair, nil
}

func (t *TwoFactor) load(ctx context.Context, accountID string) (*model.Account, error) {
	a, err := t.accounts.AccountByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, storeErr(err, "")
	}
	return a, nil
}

func (t *TwoFactor) validTOTP(secret, code string) bool {
	if !totpRe.MatchString(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      t.sec.TOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
