package utils // package utils provides helper functions for token creation and hashing

import (
	"errors" // sentinel errors for token validation
	"time"   // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // unique token identifiers (jti)
)

// TokenKind scopes a signed token to the single place it may be used.
type TokenKind string

const (
	// KindAccess tokens authorize API calls.
	KindAccess TokenKind = "access"
	// KindRefresh tokens are exchanged for new access tokens.
	KindRefresh TokenKind = "refresh"
	// KindMFA tokens are only accepted by the 2FA completion endpoint.
	KindMFA TokenKind = "mfa"
)

var (
	// ErrTokenInvalid covers malformed, badly signed and expired tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenKind is returned when a well signed token is presented where a
	// different kind is required.
	ErrTokenKind = errors.New("token kind not accepted here")
)

// Claims are the claims carried by every token the service signs.  The
// subject (sub) is the account ID and jti is unique per token.  Role and
// Email are only set on access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Kind  TokenKind `json:"typ"`
	Role  string    `json:"role,omitempty"`
	Email string    `json:"email,omitempty"`
}

// SignedToken represents a signed JWT along with its identifier and expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.
type SignedToken struct {
	Token string    // the serialized JWT string
	ID    string    // the jti claim
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 access token embedding the
// account ID, role and email.
func NewAccessToken(secret []byte, accountID, role, email string, now time.Time, ttl time.Duration) (SignedToken, error) {
	return sign(secret, Claims{Kind: KindAccess, Role: role, Email: email}, accountID, now, ttl)
}

// NewRefreshToken builds and signs an HS256 refresh token.  It embeds only
// the account ID; the jti makes every token string unique so it can key a
// persisted session.
func NewRefreshToken(secret []byte, accountID string, now time.Time, ttl time.Duration) (SignedToken, error) {
	return sign(secret, Claims{Kind: KindRefresh}, accountID, now, ttl)
}

// NewMFAToken builds the short lived intermediate token returned by a
// password login when the account has a second factor enabled.
func NewMFAToken(secret []byte, accountID string, now time.Time, ttl time.Duration) (SignedToken, error) {
	return sign(secret, Claims{Kind: KindMFA}, accountID, now, ttl)
}

func sign(secret []byte, claims Claims, subject string, now time.Time, ttl time.Duration) (SignedToken, error) {
	// Calculate the expiration time by adding the TTL to the current time.
	exp := now.Add(ttl).UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	// Create a new token object specifying the signing method (HS256) and
	// include the claims, then sign it with the provided secret.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, ID: claims.ID, Exp: claims.ExpiresAt.Time}, nil
}

// ParseToken validates signature, algorithm and expiry of raw against now
// and checks that it is of the wanted kind.  A token whose signature checks
// out but whose kind differs yields ErrTokenKind; every other failure
// yields ErrTokenInvalid.
func ParseToken(secret []byte, raw string, want TokenKind, now time.Time) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Return the secret bytes used to sign the token.
		return secret, nil
	},
		// Only accept HMAC-SHA256; anything else (including "none") is rejected.
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != want {
		return nil, ErrTokenKind
	}
	return claims, nil
}
