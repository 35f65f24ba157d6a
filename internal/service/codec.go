package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
	"github.com/iliyamo/identity-authority/internal/utils"
)

// ErrSecretTokenNotFound is returned by SecretCodec.Verify for unknown,
// already used, expired and wrong-purpose tokens alike.
var ErrSecretTokenNotFound = errors.New("secret token not found or expired")

// IssuedToken is a freshly generated one-time token. Plaintext goes to the
// user exactly once; only Hash is stored.
type IssuedToken struct {
	Plaintext string
	Hash      string
	Expires   time.Time
}

// SecretCodec issues and redeems the single-use tokens embedded in reset
// and verification links.
type SecretCodec struct {
	accounts AccountStore
	clock    clock.Clock
	ttl      map[model.TokenPurpose]time.Duration
}

func NewSecretCodec(accounts AccountStore, clk clock.Clock, resetTTL, verifyTTL time.Duration) *SecretCodec {
	return &SecretCodec{
		accounts: accounts,
		clock:    clk,
		ttl: map[model.TokenPurpose]time.Duration{
			model.PurposePasswordReset:     resetTTL,
			model.PurposeEmailVerification: verifyTTL,
		},
	}
}

// TTL returns the lifetime of tokens issued for purpose.
func (c *SecretCodec) TTL(purpose model.TokenPurpose) time.Duration { return c.ttl[purpose] }

// Issue generates a token for purpose. Storing it on the account (and with
// it replacing any earlier token of that purpose) is up to the caller.
func (c *SecretCodec) Issue(purpose model.TokenPurpose) (IssuedToken, error) {
	ttl, ok := c.ttl[purpose]
	if !ok {
		return IssuedToken{}, fmt.Errorf("unknown token purpose %q", purpose)
	}
	raw, err := utils.NewSecretToken()
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Plaintext: raw,
		Hash:      utils.HashToken(raw),
		Expires:   c.clock.Now().Add(ttl),
	}, nil
}

// Verify redeems plaintext for purpose. The matching account has the token
// cleared and apply run on it in one locked update; the updated account is
// returned. Store failures are returned unclassified.
func (c *SecretCodec) Verify(ctx context.Context, plaintext string, purpose model.TokenPurpose, apply func(*model.Account) error) (*model.Account, error) {
	if plaintext == "" {
		return nil, ErrSecretTokenNotFound
	}
	a, err := c.accounts.ConsumeOneTimeToken(ctx, purpose, utils.HashToken(plaintext), c.clock.Now(), apply)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSecretTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
