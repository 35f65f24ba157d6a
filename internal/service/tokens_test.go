package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/utils"
)

func TestRefreshAndRevoke(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()
	pair := h.login(t, "a@x.com", strongPW).Tokens

	access, a, err := h.tokens.Refresh(ctx, pair.Refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", a.Email)

	claims, err := utils.ParseToken([]byte("access-secret"), access.Token, utils.KindAccess, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, a.ID, claims.Subject)
	assert.Equal(t, "user", claims.Role)

	require.NoError(t, h.tokens.Revoke(ctx, pair.Refresh.Token))
	require.NoError(t, h.tokens.Revoke(ctx, pair.Refresh.Token), "revoke is idempotent")
	require.NoError(t, h.tokens.Revoke(ctx, "not-a-token"))

	_, _, err = h.tokens.Refresh(ctx, pair.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestRefreshRequiresSession(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "a@x.com")
	ctx := context.Background()

	// Correctly signed, never persisted.
	orphan, err := utils.NewRefreshToken([]byte("refresh-secret"), id, h.clock.Now(), time.Hour)
	require.NoError(t, err)
	_, _, err = h.tokens.Refresh(ctx, orphan.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	pair := h.login(t, "a@x.com", strongPW).Tokens
	_, _, err = h.tokens.Refresh(ctx, pair.Access.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "access tokens are not refresh tokens")
}

func TestRefreshTokenExpires(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	pair := h.login(t, "a@x.com", strongPW).Tokens

	h.clock.Advance(7*24*time.Hour + time.Second)
	_, _, err := h.tokens.Refresh(context.Background(), pair.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "a@x.com")
	ctx := context.Background()
	pair := h.login(t, "a@x.com", strongPW).Tokens

	a, err := h.tokens.Authenticate(ctx, pair.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)

	_, err = h.tokens.Authenticate(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = h.tokens.Authenticate(ctx, pair.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	h.clock.Advance(16 * time.Minute)
	_, err = h.tokens.Authenticate(ctx, pair.Access.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestSecretCodecIssue(t *testing.T) {
	h := newHarness(t)
	codec := NewSecretCodec(h.store, h.clock, 10*time.Minute, 24*time.Hour)

	a, err := codec.Issue("password_reset")
	require.NoError(t, err)
	b, err := codec.Issue("password_reset")
	require.NoError(t, err)

	assert.Len(t, a.Plaintext, 64, "256 bits, hex encoded")
	assert.NotEqual(t, a.Plaintext, b.Plaintext)
	assert.Equal(t, utils.HashToken(a.Plaintext), a.Hash)
	assert.Equal(t, h.clock.Now().Add(10*time.Minute), a.Expires)

	_, err = codec.Issue("unknown")
	assert.Error(t, err)

	_, err = codec.Verify(context.Background(), "", "password_reset", nil)
	assert.ErrorIs(t, err, ErrSecretTokenNotFound)
}

func TestLogoutIsScopedToCaller(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "a@x.com")
	bob := h.register(t, "b@x.com")
	ctx := context.Background()
	pair := h.login(t, "a@x.com", strongPW).Tokens

	require.NoError(t, h.tokens.Logout(ctx, bob, pair.Refresh.Token))
	_, _, err := h.tokens.Refresh(ctx, pair.Refresh.Token)
	require.NoError(t, err, "another account cannot end the session")

	require.NoError(t, h.tokens.Logout(ctx, alice, pair.Refresh.Token))
	require.NoError(t, h.tokens.Logout(ctx, alice, pair.Refresh.Token))
	require.NoError(t, h.tokens.Logout(ctx, alice, ""))
	_, _, err = h.tokens.Refresh(ctx, pair.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}
