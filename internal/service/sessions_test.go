package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/logging"
)

func TestSessionRegistry(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "a@x.com")
	bob := h.register(t, "b@x.com")
	ctx := context.Background()

	first := h.login(t, "a@x.com", strongPW).Tokens
	h.clock.Advance(time.Minute)
	second := h.login(t, "a@x.com", strongPW).Tokens
	h.clock.Advance(time.Minute)
	third := h.login(t, "a@x.com", strongPW).Tokens
	bobs := h.login(t, "b@x.com", strongPW).Tokens

	list, err := h.sessions.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, third.SessionID, list[0].ID, "newest first")
	assert.Equal(t, first.SessionID, list[2].ID)

	err = h.sessions.RevokeOne(ctx, bob, first.SessionID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "cannot revoke another account's session")
	err = h.sessions.RevokeOne(ctx, alice, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, h.sessions.RevokeOne(ctx, alice, first.SessionID))
	_, _, err = h.tokens.Refresh(ctx, first.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	n, err := h.sessions.RevokeAllExcept(ctx, alice, third.Refresh.Token)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, _, err = h.tokens.Refresh(ctx, second.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, _, err = h.tokens.Refresh(ctx, third.Refresh.Token)
	assert.NoError(t, err)
	_, _, err = h.tokens.Refresh(ctx, bobs.Refresh.Token)
	assert.NoError(t, err, "other accounts are untouched")
}

func TestSessionJanitor(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "a@x.com")
	ctx := context.Background()

	old := h.login(t, "a@x.com", strongPW).Tokens
	live := h.login(t, "a@x.com", strongPW).Tokens
	require.NoError(t, h.tokens.Revoke(ctx, old.Refresh.Token))

	j := NewSessionJanitor(h.store, h.clock, logging.Discard(), time.Hour, 24*time.Hour)
	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "revoked sessions are kept for the retention window")

	h.clock.Advance(25 * time.Hour)
	n, err = j.RunOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := h.sessions.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, live.SessionID, list[0].ID)
}
