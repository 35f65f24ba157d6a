package service

import (
	"context"
	"errors"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/utils"
)

// passwordHasher is the only place passwords are hashed or compared.
// Hashing runs before any store lock is taken.
type passwordHasher struct {
	cost  int
	dummy string // compared against when the account does not exist
}

func newPasswordHasher(cost int) (passwordHasher, error) {
	dummy, err := utils.HashPassword("not-a-real-password", cost)
	if err != nil {
		return passwordHasher{}, err
	}
	return passwordHasher{cost: cost, dummy: dummy}, nil
}

func (p passwordHasher) hash(ctx context.Context, plain string) (string, error) {
	h, err := utils.HashPasswordContext(ctx, plain, p.cost)
	if err != nil {
		return "", hashErr(err)
	}
	return h, nil
}

// verify compares plain against hash. An empty hash (no local password)
// is compared against the dummy hash so the call costs the same and fails.
func (p passwordHasher) verify(ctx context.Context, hash, plain string) (bool, error) {
	if hash == "" {
		_, err := utils.VerifyPasswordContext(ctx, p.dummy, plain)
		return false, hashErr(err)
	}
	ok, err := utils.VerifyPasswordContext(ctx, hash, plain)
	if err != nil {
		return false, hashErr(err)
	}
	return ok, nil
}

func hashErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Unavailable(err)
	}
	return apperr.Wrap(apperr.KindInternal, "password hashing failed", err)
}
