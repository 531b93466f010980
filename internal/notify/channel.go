// Package notify records and dispatches notifications: the per-recipient
// fanout used by the event lifecycle, the daily reminder job and the
// processor for scheduled notifications.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/models"
)

// Recipient is the contact snapshot a notification is addressed to.
type Recipient struct {
	UserID   uuid.UUID
	Name     string
	Email    string
	Phone    string
	TierName string
	// PartySize is zero when the recipient is not a registrant.
	PartySize int
}

func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return "there"
}

// Address returns the destination for the channel, or "" when the
// recipient has none.
func (r Recipient) Address(channel models.NotificationChannel) string {
	if channel == models.ChannelEmail {
		return r.Email
	}
	return r.Phone
}

func RecipientFromUser(user *models.User) Recipient {
	return Recipient{
		UserID: user.ID,
		Name:   user.DisplayName(),
		Email:  user.Email,
		Phone:  user.PhoneNumber,
	}
}

func RecipientFromRegistration(registration *models.Registration) Recipient {
	return Recipient{
		UserID:    registration.UserID,
		Name:      registration.Name,
		Email:     registration.Email,
		Phone:     registration.Phone,
		TierName:  registration.TicketTierName,
		PartySize: registration.PartySize(),
	}
}

// Delivery is a single rendered message for one address.
type Delivery struct {
	To      string
	Name    string
	Subject string
	Body    string
}

// Result mirrors the provider's own success flag.
type Result struct {
	Success bool
	Error   string
}

func Failed(err error) Result {
	return Result{Error: err.Error()}
}

// Channel is a delivery transport (email provider, SMS gateway, ...).
type Channel interface {
	Name() models.NotificationChannel
	Send(ctx context.Context, delivery Delivery) Result
}

// LogChannel only logs the message. It stands in for a transport that has
// no credentials configured.
type LogChannel struct {
	channel models.NotificationChannel
}

func NewLogChannel(channel models.NotificationChannel) *LogChannel {
	return &LogChannel{channel: channel}
}

func (c *LogChannel) Name() models.NotificationChannel { return c.channel }

func (c *LogChannel) Send(ctx context.Context, delivery Delivery) Result {
	logging.Ctx(ctx).Info().
		Str("channel", string(c.channel)).
		Str("to", delivery.To).
		Str("subject", delivery.Subject).
		Msg("notification delivered to log channel")
	return Result{Success: true}
}
