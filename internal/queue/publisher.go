package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/mail"
)

// MailPublisher is the amqp mail transport: each message is published as a
// MailRequestedEvent to a durable queue.  It implements mail.Sender.
type MailPublisher struct {
	url   string
	queue string
	log   logging.Logger
}

func NewMailPublisher(url, queue string, log logging.Logger) *MailPublisher {
	return &MailPublisher{url: url, queue: queue, log: log}
}

// Send publishes msg.  The function never panics; any error is logged and
// returned so the caller can choose to ignore it.  Messages are marked as
// persistent.
func (p *MailPublisher) Send(ctx context.Context, msg mail.Message) (mail.DeliveryResult, error) {
	id := uuid.NewString()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn(ctx, "rabbitmq: dial failed", "err", err)
		return mail.DeliveryResult{}, err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn(ctx, "rabbitmq: channel open failed", "err", err)
		return mail.DeliveryResult{}, err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		p.log.Warn(ctx, "rabbitmq: queue declare failed", "err", err)
		return mail.DeliveryResult{}, err
	}

	now := time.Now().UTC()
	body, err := json.Marshal(NewMailRequestedEvent(id, msg, now))
	if err != nil {
		return mail.DeliveryResult{}, err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    id,
		Timestamp:    now,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.log.Warn(ctx, "rabbitmq: publish failed", "err", err)
		return mail.DeliveryResult{}, err
	}

	return mail.DeliveryResult{ID: id, Transport: "amqp"}, nil
}
