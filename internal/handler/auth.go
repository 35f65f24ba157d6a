package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/middleware"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/service"
)

// AuthHandler bundles dependencies for the /v1/auth endpoints.
type AuthHandler struct {
	Auth      *service.Authenticator
	Tokens    *service.TokenIssuer
	TwoFactor *service.TwoFactor
	Timeout   time.Duration
}

func NewAuthHandler(auth *service.Authenticator, tokens *service.TokenIssuer, tfa *service.TwoFactor, timeout time.Duration) *AuthHandler {
	return &AuthHandler{Auth: auth, Tokens: tokens, TwoFactor: tfa, Timeout: timeout}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type verify2FAReq struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type emailReq struct {
	Email string `json:"email"`
}
type passwordReq struct {
	Password string `json:"password"`
}
type codeReq struct {
	Code string `json:"code"`
}

type authResp struct {
	User                 model.AccountView `json:"user"`
	AccessToken          string            `json:"accessToken"`
	AccessTokenExpiresAt time.Time         `json:"accessTokenExpiresAt"`
	RefreshToken         string            `json:"refreshToken"`
	SessionID            string            `json:"sessionId"`
}
type mfaResp struct {
	Requires2FA bool      `json:"requires2FA"`
	TempToken   string    `json:"tempToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func newAuthResp(a *model.Account, p service.TokenPair) authResp {
	return authResp{
		User:                 model.NewAccountView(a),
		AccessToken:          p.Access.Token,
		AccessTokenExpiresAt: p.Access.Exp,
		RefreshToken:         p.Refresh.Token,
		SessionID:            p.SessionID,
	}
}

// Register: create an unverified account and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	a, err := h.Auth.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	pair, err := h.Tokens.IssuePair(ctx, a, clientMeta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, "Registration successful. Please verify your email.", newAuthResp(a, pair))
}

// Login: verify credentials and return a token pair, or a temporary token
// when the account has 2FA enabled.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password, clientMeta(c))
	if err != nil {
		return err
	}
	if res.Requires2FA {
		return success(c, http.StatusOK, "2FA verification required", mfaResp{
			Requires2FA: true,
			TempToken:   res.MFAToken.Token,
			ExpiresAt:   res.MFAToken.Exp,
		})
	}
	return success(c, http.StatusOK, "Login successful", newAuthResp(res.Account, *res.Tokens))
}

// Verify2FA: exchange the temporary token and a TOTP or backup code for a
// token pair.
func (h *AuthHandler) Verify2FA(c echo.Context) error {
	var req verify2FAReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	a, pair, err := h.TwoFactor.CompleteLogin(ctx, strings.TrimSpace(req.TempToken), req.Code, clientMeta(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "2FA verification successful", newAuthResp(a, pair))
}

// RefreshToken: issue a new access token. The refresh token is not rotated.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		return apperr.InvalidInput("Refresh token is required")
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	access, _, err := h.Tokens.Refresh(ctx, raw)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{
		"accessToken":          access.Token,
		"accessTokenExpiresAt": access.Exp,
	})
}

// Logout: revoke the session behind the supplied refresh token. A token
// that belongs to another account is ignored.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Tokens.Logout(ctx, middleware.CurrentAccount(c).ID, strings.TrimSpace(req.RefreshToken)); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Logout successful", nil)
}

// ForgotPassword answers identically whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Auth.RequestPasswordReset(ctx, req.Email); err != nil {
		return err
	}
	return success(c, http.StatusOK, service.MsgResetRequested, nil)
}

// ResendVerification answers identically whether or not the account exists.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Auth.RequestEmailVerification(ctx, req.Email); err != nil {
		return err
	}
	return success(c, http.StatusOK, service.MsgVerificationRequested, nil)
}

// ResetPassword: set a new password with the token from the reset link.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req passwordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, c.Param("token"), req.Password); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Password reset successful. Please login with your new password.", nil)
}

// VerifyEmail: confirm the address with the token from the verification link.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if _, err := h.Auth.VerifyEmail(ctx, c.Param("token")); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Email verified successfully", nil)
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c echo.Context) error {
	a := middleware.CurrentAccount(c)
	return success(c, http.StatusOK, "", echo.Map{"user": model.NewAccountView(a)})
}

// Setup2FA generates a secret and backup codes; 2FA stays off until enabled.
func (h *AuthHandler) Setup2FA(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	res, err := h.TwoFactor.Setup(ctx, middleware.CurrentAccount(c).ID)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Scan the secret with your authenticator app, then confirm with a code.", res)
}

func (h *AuthHandler) Enable2FA(c echo.Context) error {
	var req codeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.TwoFactor.Enable(ctx, middleware.CurrentAccount(c).ID, req.Code); err != nil {
		return err
	}
	return success(c, http.StatusOK, "2FA enabled successfully", nil)
}

func (h *AuthHandler) Disable2FA(c echo.Context) error {
	var req codeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.TwoFactor.Disable(ctx, middleware.CurrentAccount(c).ID, req.Code); err != nil {
		return err
	}
	return success(c, http.StatusOK, "2FA disabled successfully", nil)
}
