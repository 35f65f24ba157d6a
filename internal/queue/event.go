// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/identity-authority/internal/mail"
)

// MailRequestedEvent is published for every outbound email.  It carries the
// fully rendered message so a relay can deliver it without touching the
// account store.
type MailRequestedEvent struct {
	ID       string `json:"id"`
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text"`
	QueuedAt string `json:"queued_at"`
}

// NewMailRequestedEvent wraps msg for publishing.
func NewMailRequestedEvent(id string, msg mail.Message, at time.Time) MailRequestedEvent {
	return MailRequestedEvent{
		ID:       id,
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
		QueuedAt: at.UTC().Format(time.RFC3339),
	}
}
