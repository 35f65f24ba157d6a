package middleware

// identity.go holds the accessors for the identity JWTAuth stores on the
// Echo context.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-authority/internal/model"
)

const accountKey = "account"

// CurrentAccount returns the authenticated account, or nil on routes that
// are not behind JWTAuth.
func CurrentAccount(c echo.Context) *model.Account {
	a, _ := c.Get(accountKey).(*model.Account)
	return a
}

// currentUserID keys per-user buckets.  Anonymous requests share "anon".
func currentUserID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anon"
}
