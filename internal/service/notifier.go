package service

import (
	"context"
	"strconv"
	"time"

	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/mail"
	"github.com/iliyamo/identity-authority/internal/model"
)

// Notifier renders and sends account emails. Sending is best-effort: a
// failure is logged and never reported to the caller, so the account change
// that preceded it stands.
type Notifier struct {
	sender  mail.Sender
	baseURL string
	from    string
	log     logging.Logger
	timeout time.Duration
}

func NewNotifier(sender mail.Sender, baseURL, from string, log logging.Logger) *Notifier {
	return &Notifier{sender: sender, baseURL: baseURL, from: from, log: log, timeout: 5 * time.Second}
}

func (n *Notifier) SendVerification(ctx context.Context, a *model.Account, token string, ttl time.Duration) {
	msg, err := mail.VerificationEmail(a.Email, a.FirstName, n.baseURL, token, humanDuration(ttl))
	n.send(ctx, a, "verification", msg, err)
}

func (n *Notifier) SendPasswordReset(ctx context.Context, a *model.Account, token string, ttl time.Duration) {
	msg, err := mail.PasswordResetEmail(a.Email, a.FirstName, n.baseURL, token, humanDuration(ttl))
	n.send(ctx, a, "password_reset", msg, err)
}

func (n *Notifier) send(ctx context.Context, a *model.Account, kind string, msg mail.Message, renderErr error) {
	if renderErr != nil {
		n.log.Error(ctx, "render mail", "kind", kind, "account_id", a.ID, "err", renderErr)
		return
	}
	msg.From = n.from
	// The request may finish before the transport does.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	res, err := n.sender.Send(sendCtx, msg)
	if err != nil {
		n.log.Warn(ctx, "mail delivery failed", "kind", kind, "account_id", a.ID, "err", err)
		return
	}
	n.log.Info(ctx, "mail handed to transport", "kind", kind, "account_id", a.ID, "mail_id", res.ID, "transport", res.Transport)
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
