// Package mail describes outbound email and the transports that deliver it.
// Delivery is best-effort: callers log a failed send and carry on, so a
// mail outage never undoes the account change that triggered the message.
package mail

import "context"

// Message is one outbound email with both an HTML and a plain text body.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// DeliveryResult reports what the transport did with a message.
type DeliveryResult struct {
	ID        string // transport-assigned id, when any
	Transport string // "amqp" or "log"
}

// Sender hands a message to a transport.
type Sender interface {
	Send(ctx context.Context, msg Message) (DeliveryResult, error)
}
