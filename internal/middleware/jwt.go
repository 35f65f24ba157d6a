package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context" // resolver signature
	"strings" // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/identity-authority/internal/model"
)

// TokenResolver turns a raw bearer access token into the account it was
// issued for.  service.TokenIssuer implements it.
type TokenResolver interface {
	Authenticate(ctx context.Context, raw string) (*model.Account, error)
}

// JWTAuth returns an Echo middleware that resolves the Bearer access token
// and injects the account, its ID and its role into the request context.
// Handlers read them via CurrentAccount, `c.Get("user_id")` and
// `c.Get("role")`.  Resolver errors are already classified and are
// returned to the error handler unchanged.
func JWTAuth(resolver TokenResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, err := resolver.Authenticate(c.Request().Context(), BearerToken(c))
			if err != nil {
				return err
			}
			c.Set(accountKey, a)
			c.Set("user_id", a.ID)
			c.Set("role", a.Role)
			return next(c)
		}
	}
}

// BearerToken returns the token from an "Authorization: Bearer <token>"
// header, or "" when the header is missing or uses another scheme.
func BearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
