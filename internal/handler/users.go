package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-authority/internal/middleware"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/service"
)

// UserHandler serves the /v1/users endpoints: profile, password, account
// deletion and session management for the calling account.
type UserHandler struct {
	Auth     *service.Authenticator
	Sessions *service.SessionRegistry
	Timeout  time.Duration
}

func NewUserHandler(auth *service.Authenticator, sessions *service.SessionRegistry, timeout time.Duration) *UserHandler {
	return &UserHandler{Auth: auth, Sessions: sessions, Timeout: timeout}
}

type profileReq struct {
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type changePasswordReq struct {
	CurrentPassword     string `json:"currentPassword"`
	NewPassword         string `json:"newPassword"`
	CurrentRefreshToken string `json:"currentRefreshToken"`
}

type currentTokenReq struct {
	CurrentRefreshToken string `json:"currentRefreshToken"`
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req profileReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	a, err := h.Auth.UpdateProfile(ctx, middleware.CurrentAccount(c).ID, service.ProfileInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Profile updated successfully", echo.Map{"user": model.NewAccountView(a)})
}

// UpdatePassword changes the password and signs out every other device.
// The session of currentRefreshToken, when given, stays valid.
func (h *UserHandler) UpdatePassword(c echo.Context) error {
	var req changePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, middleware.CurrentAccount(c).ID, req.CurrentPassword, req.NewPassword, req.CurrentRefreshToken); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Password updated successfully", nil)
}

func (h *UserHandler) DeleteAccount(c echo.Context) error {
	var req passwordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Auth.DeleteAccount(ctx, middleware.CurrentAccount(c).ID, req.Password); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Account deleted successfully", nil)
}

func (h *UserHandler) GetSessions(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	list, err := h.Sessions.List(ctx, middleware.CurrentAccount(c).ID)
	if err != nil {
		return err
	}
	views := make([]model.SessionView, 0, len(list))
	for _, s := range list {
		views = append(views, model.NewSessionView(s))
	}
	return success(c, http.StatusOK, "", echo.Map{"sessions": views})
}

func (h *UserHandler) RevokeSession(c echo.Context) error {
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	if err := h.Sessions.RevokeOne(ctx, middleware.CurrentAccount(c).ID, c.Param("sessionId")); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Session revoked successfully", nil)
}

// RevokeAllSessions ends every session except the caller's own.
func (h *UserHandler) RevokeAllSessions(c echo.Context) error {
	var req currentTokenReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c, h.Timeout)
	defer cancel()

	n, err := h.Sessions.RevokeAllExcept(ctx, middleware.CurrentAccount(c).ID, req.CurrentRefreshToken)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "All other sessions revoked successfully", echo.Map{"revoked": n})
}
