package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/farellandr/eventhub/internal/models"
)

// EmailChannel sends plain-text mail through MailerSend.
type EmailChannel struct {
	client    *mailersend.Mailersend
	fromEmail string
	fromName  string
	timeout   time.Duration
}

func NewEmailChannel(apiKey, fromName, fromEmail string) *EmailChannel {
	return &EmailChannel{
		client:    mailersend.NewMailersend(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		timeout:   10 * time.Second,
	}
}

func (c *EmailChannel) Name() models.NotificationChannel { return models.ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, delivery Delivery) Result {
	if delivery.To == "" {
		return Result{Error: "recipient has no email address"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	message := c.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: c.fromName, Email: c.fromEmail})
	message.SetRecipients([]mailersend.Recipient{{Name: delivery.Name, Email: delivery.To}})
	message.SetSubject(delivery.Subject)
	message.SetText(delivery.Body)

	if _, err := c.client.Email.Send(ctx, message); err != nil {
		return Failed(fmt.Errorf("failed to send email: %w", err))
	}
	return Result{Success: true}
}
