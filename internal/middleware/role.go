package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/identity-authority/internal/apperr"
)

// RequireRole returns a middleware function that enforces that the
// authenticated account has one of the specified roles.  It assumes JWTAuth
// has stored the role in the context under the key "role"; a missing or
// foreign role aborts the request with Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return apperr.Forbidden("You do not have permission to perform this action")
			}
			return next(c)
		}
	}
}

// RequireVerifiedEmail rejects accounts that have not confirmed their email
// address.  It must run after JWTAuth.
func RequireVerifiedEmail() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := CurrentAccount(c)
			if a == nil {
				return apperr.Unauthorized("Access token missing. Please login.")
			}
			if !a.EmailVerified {
				return apperr.Forbidden("Please verify your email address to access this resource")
			}
			return next(c)
		}
	}
}
