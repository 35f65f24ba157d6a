package utils

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashPasswordContext is HashPassword bounded by ctx. When ctx ends first the
// context error is returned and the hash result is discarded.
func HashPasswordContext(ctx context.Context, plain string, cost int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type result struct {
		hash string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		h, err := HashPassword(plain, cost)
		done <- result{h, err}
	}()
	select {
	case r := <-done:
		return r.hash, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// VerifyPasswordContext is VerifyPassword bounded by ctx.
func VerifyPasswordContext(ctx context.Context, hash, plain string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	done := make(chan bool, 1)
	go func() { done <- VerifyPassword(hash, plain) }()
	select {
	case ok := <-done:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
