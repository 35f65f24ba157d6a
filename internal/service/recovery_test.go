package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/identity-authority/internal/apperr"
)

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "a@x.com")
	ctx := context.Background()
	before := h.login(t, "a@x.com", strongPW)

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"))
	first := h.mail.lastToken(t)
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "A@X.COM"))
	second := h.mail.lastToken(t)
	require.NotEqual(t, first, second)

	err := h.auth.ResetPassword(ctx, first, "N3w!Password")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "a newer token replaces the older one")

	require.NoError(t, h.auth.ResetPassword(ctx, second, "N3w!Password"))

	err = h.auth.ResetPassword(ctx, second, "Other!Pass9")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "tokens are single use")

	_, _, err = h.tokens.Refresh(ctx, before.Tokens.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "reset revokes every session")
	list, err := h.sessions.List(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, list)

	h.login(t, "a@x.com", "N3w!Password")
}

func TestPasswordResetKeepsTokenWhenRevocationFails(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()
	before := h.login(t, "a@x.com", strongPW)

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"))
	token := h.mail.lastToken(t)

	h.flaky.failRevokeAll.Store(true)
	err := h.auth.ResetPassword(ctx, token, "N3w!Password")
	require.True(t, apperr.Is(err, apperr.KindUnavailable), "got %v", err)

	_, _, err = h.tokens.Refresh(ctx, before.Tokens.Refresh.Token)
	assert.NoError(t, err, "nothing changed yet")
	_, err = h.auth.Login(ctx, "a@x.com", "N3w!Password", ClientMeta{})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized), "password unchanged")

	h.flaky.failRevokeAll.Store(false)
	require.NoError(t, h.auth.ResetPassword(ctx, token, "N3w!Password"), "token survives the failed attempt")

	_, _, err = h.tokens.Refresh(ctx, before.Tokens.Refresh.Token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	h.login(t, "a@x.com", "N3w!Password")
}

func TestPasswordResetClearsLockout(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = h.auth.Login(ctx, "a@x.com", "wrong", ClientMeta{})
	}

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"))
	require.NoError(t, h.auth.ResetPassword(ctx, h.mail.lastToken(t), "N3w!Password"))
	h.login(t, "a@x.com", "N3w!Password")
}

func TestPasswordResetTokenExpires(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()

	require.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"))
	tok := h.mail.lastToken(t)

	h.clock.Advance(10 * time.Minute)
	err := h.auth.ResetPassword(ctx, tok, "N3w!Password")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "expiry equal to now is already expired")
}

func TestPasswordResetRequestDoesNotEnumerate(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	sent := h.mail.count()
	ctx := context.Background()

	assert.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"))
	assert.NoError(t, h.auth.RequestPasswordReset(ctx, "ghost@x.com"))
	assert.Equal(t, sent+1, h.mail.count())
}

func TestRecoveryRequestsIssueOffTheRequestPath(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	sent := h.mail.count()
	ctx := context.Background()

	h.flaky.failUpdate.Store(true)
	assert.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"), "issue failures never reach the caller")
	assert.NoError(t, h.auth.RequestEmailVerification(ctx, "a@x.com"))
	h.auth.Wait()
	h.flaky.failUpdate.Store(false)
	assert.Equal(t, sent, h.mail.count())

	require.NoError(t, h.auth.RequestEmailVerification(ctx, "a@x.com"))
	assert.Equal(t, sent+1, h.mail.count())
}

func TestResetPasswordRejectsWeakPassword(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()
	require.NoError(t, h.auth.RequestPasswordReset(ctx, "a@x.com"))
	tok := h.mail.lastToken(t)

	err := h.auth.ResetPassword(ctx, tok, "weak")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
	require.NoError(t, h.auth.ResetPassword(ctx, tok, "N3w!Password"), "validation failure does not burn the token")
}

func TestEmailVerificationFlow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	ctx := context.Background()
	registered := h.mail.lastToken(t)

	require.NoError(t, h.auth.RequestEmailVerification(ctx, "a@x.com"))
	resent := h.mail.lastToken(t)

	_, err := h.auth.VerifyEmail(ctx, registered)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	a, err := h.auth.VerifyEmail(ctx, resent)
	require.NoError(t, err)
	assert.True(t, a.EmailVerified)
	assert.Empty(t, a.VerifyTokenHash)

	_, err = h.auth.VerifyEmail(ctx, resent)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	sent := h.mail.count()
	require.NoError(t, h.auth.RequestEmailVerification(ctx, "a@x.com"))
	require.NoError(t, h.auth.RequestEmailVerification(ctx, "ghost@x.com"))
	assert.Equal(t, sent, h.mail.count(), "verified and unknown accounts get no mail")
}

func TestVerificationTokenCannotResetPassword(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")

	err := h.auth.ResetPassword(context.Background(), h.mail.lastToken(t), "N3w!Password")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestVerificationTokenExpires(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a@x.com")
	tok := h.mail.lastToken(t)

	h.clock.Advance(24*time.Hour - time.Second)
	_, err := h.auth.VerifyEmail(context.Background(), tok)
	require.NoError(t, err)

	h.register(t, "b@x.com")
	tok = h.mail.lastToken(t)
	h.clock.Advance(24 * time.Hour)
	_, err = h.auth.VerifyEmail(context.Background(), tok)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}
