package handler // handler defines http handlers

import (
	"context"   // request-scoped deadlines for service calls
	"errors"    // unwrap echo and application errors
	"net/http"  // HTTP status codes
	"time"      // handler timeout

	"github.com/labstack/echo/v4" // echo defines request context types

	"github.com/iliyamo/identity-authority/internal/apperr"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/service"
)

// envelope is the body of every JSON response: status is "success",
// "fail" (client error) or "error" (server error).
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const msgGeneric = "Something went wrong!"

func success(c echo.Context, code int, msg string, data any) error {
	return c.JSON(code, envelope{Status: "success", Message: msg, Data: data})
}

// bind decodes the request body.  Malformed JSON is InvalidInput.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.InvalidInput("Invalid request body")
	}
	return nil
}

// requestCtx bounds store and hashing work for one request.
func requestCtx(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), d)
}

func clientMeta(c echo.Context) service.ClientMeta {
	return service.ClientMeta{UserAgent: c.Request().UserAgent(), IP: c.RealIP()}
}

// NewErrorHandler renders every error returned by handlers and middleware
// as an envelope.  Classified errors show their message; anything else is
// logged in full and, in production, reported only as a generic failure.
func NewErrorHandler(production bool, log logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ctx := c.Request().Context()

		code := http.StatusInternalServerError
		msg := msgGeneric

		var he *echo.HTTPError
		var ae *apperr.Error
		switch {
		case errors.As(err, &ae):
			code = apperr.Status(ae.Kind)
			msg = ae.Message
			if ae.Kind == apperr.KindInternal {
				log.Error(ctx, "request failed", "path", c.Path(), "err", err)
				if production {
					msg = msgGeneric
				}
			} else if ae.Kind == apperr.KindUnavailable {
				log.Warn(ctx, "dependency unavailable", "path", c.Path(), "err", err)
			}
		case errors.As(err, &he):
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
			if code >= 500 {
				log.Error(ctx, "request failed", "path", c.Path(), "err", err)
			}
		case apperr.KindOf(err) == apperr.KindUnavailable:
			code = http.StatusServiceUnavailable
			msg = apperr.Unavailable(err).Message
			log.Warn(ctx, "request timed out", "path", c.Path(), "err", err)
		default:
			log.Error(ctx, "request failed", "path", c.Path(), "err", err)
			if !production {
				msg = err.Error()
			}
		}

		status := "error"
		if code < 500 {
			status = "fail"
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, envelope{Status: status, Message: msg})
		}
		if werr != nil {
			log.Error(ctx, "write error response", "err", werr)
		}
	}
}
