package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/identity-authority/internal/config"
	"github.com/iliyamo/identity-authority/internal/handler"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/middleware"
	"github.com/iliyamo/identity-authority/internal/ratelimit"
)

const (
	msgTooManyRequests = "Too many requests from this IP, please try again later."
	msgTooManyAuth     = "Too many authentication attempts, please try again later."
)

// Limits pairs each bucket configuration with the limiter that enforces it.
// A nil limiter disables that bucket.
type Limits struct {
	Config config.RateLimits
	Global ratelimit.Limiter
	Auth   ratelimit.Limiter
	User   ratelimit.Limiter
	Log    logging.Logger
}

func (l Limits) global() echo.MiddlewareFunc {
	return middleware.NewTokenBucket(l.Config.Global, l.Global, l.Log, msgTooManyRequests)
}

func (l Limits) auth() echo.MiddlewareFunc {
	return middleware.NewTokenBucket(l.Config.Auth, l.Auth, l.Log, msgTooManyAuth)
}

func (l Limits) user() echo.MiddlewareFunc {
	return middleware.NewTokenBucket(l.Config.User, l.User, l.Log, msgTooManyRequests)
}

// RegisterRoutes registers routes that do not require authentication and
// are not rate limited.  Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health(checks))
}

// RegisterAuth registers the /v1/auth routes.  Credential endpoints get the
// strict per-IP bucket on top of the global one; the rest of the group
// requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, resolver middleware.TokenResolver, lim Limits) {
	g := e.Group("/v1/auth", lim.global())

	strict := lim.auth()
	g.POST("/register", a.Register, strict)
	g.POST("/login", a.Login, strict)
	g.POST("/verify-2fa", a.Verify2FA, strict)
	g.POST("/forgot-password", a.ForgotPassword, strict)
	g.POST("/resend-verification", a.ResendVerification, strict)

	g.POST("/refresh-token", a.RefreshToken)
	g.GET("/reset-password/:token", a.ResetPasswordForm)
	g.POST("/reset-password/:token", a.ResetPassword, strict)
	g.GET("/verify-email/:token", a.VerifyEmail)

	// Everything below needs a full access token; 2FA intermediate tokens
	// are refused by the resolver.
	p := g.Group("", middleware.JWTAuth(resolver), lim.user())
	p.GET("/me", a.Me)
	p.POST("/logout", a.Logout)
	p.POST("/2fa/setup", a.Setup2FA)
	p.POST("/2fa/enable", a.Enable2FA)
	p.POST("/2fa/disable", a.Disable2FA)
}

// RegisterUsers registers the /v1/users routes.  All of them act on the
// authenticated account.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, resolver middleware.TokenResolver, lim Limits) {
	g := e.Group("/v1/users", lim.global(), middleware.JWTAuth(resolver), lim.user())

	g.PATCH("/profile", u.UpdateProfile)
	g.PATCH("/password", u.UpdatePassword)
	g.DELETE("/account", u.DeleteAccount)

	g.GET("/sessions", u.GetSessions)
	g.DELETE("/sessions/:sessionId", u.RevokeSession)
	g.POST("/sessions/revoke-all", u.RevokeAllSessions)
}
