package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	secret = []byte("test-access-secret")
	now    = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken(secret, "u1", "user", "a@x.com", now, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), tok.Exp)
	assert.NotEmpty(t, tok.ID)

	claims, err := ParseToken(secret, tok.Token, KindAccess, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, tok.ID, claims.ID)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := NewAccessToken(secret, "u1", "user", "a@x.com", now, 15*time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(secret, tok.Token, KindAccess, now.Add(16*time.Minute))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := NewRefreshToken([]byte("refresh-secret"), "u1", now, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(secret, tok.Token, KindRefresh, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_KindMismatch(t *testing.T) {
	tok, err := NewMFAToken(secret, "u1", now, 5*time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(secret, tok.Token, KindAccess, now)
	assert.ErrorIs(t, err, ErrTokenKind)

	claims, err := ParseToken(secret, tok.Token, KindMFA, now)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		Kind: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(secret, raw, KindAccess, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	a, err := NewRefreshToken(secret, "u1", now, time.Hour)
	require.NoError(t, err)
	b, err := NewRefreshToken(secret, "u1", now, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}
