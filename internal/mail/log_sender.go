package mail

import (
	"context"

	"github.com/google/uuid"

	"github.com/iliyamo/identity-authority/internal/logging"
)

// LogSender writes messages to the structured log instead of delivering
// them. It is the MAIL_DRIVER=log transport for local development and is
// refused in production. The body carries the token link, so it only goes
// out at debug level.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	id := uuid.NewString()
	s.log.Info(ctx, "mail not delivered, logged instead",
		"mail_id", id, "from", msg.From, "to", msg.To, "subject", msg.Subject)
	s.log.Debug(ctx, "mail body", "mail_id", id, "body", msg.Text)
	return DeliveryResult{ID: id, Transport: "log"}, nil
}
