package notify

import (
	"context"
	"time"

	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/metrics"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/store"
)

// Request describes one fanout: the same template sent to every recipient.
type Request struct {
	// Event may be nil for account notifications.
	Event      *models.Event
	Template   Template
	Recipients []Recipient
	// Channel is the requested transport; empty means the default.
	Channel models.NotificationChannel
	// Note is free text some templates include (flag reason, decision).
	Note string
}

// Fanout records one notification per recipient and dispatches it. Delivery
// failures are recorded and logged, never returned.
type Fanout struct {
	notifications  store.NotificationStore
	channels       map[models.NotificationChannel]Channel
	defaultChannel models.NotificationChannel
	loc            *time.Location
	now            func() time.Time
}

type Option func(*Fanout)

func WithClock(now func() time.Time) Option {
	return func(f *Fanout) { f.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(f *Fanout) { f.loc = loc }
}

func WithDefaultChannel(channel models.NotificationChannel) Option {
	return func(f *Fanout) { f.defaultChannel = channel }
}

func NewFanout(notifications store.NotificationStore, channels []Channel, opts ...Option) *Fanout {
	f := &Fanout{
		notifications:  notifications,
		channels:       make(map[models.NotificationChannel]Channel, len(channels)),
		defaultChannel: models.ChannelEmail,
		loc:            time.UTC,
		now:            time.Now,
	}
	for _, c := range channels {
		f.channels[c.Name()] = c
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fanout) Location() *time.Location { return f.loc }

// resolveChannel picks the requested channel, the default when none was
// requested, and falls back to email when the recipient has no address for
// a phone channel.
func (f *Fanout) resolveChannel(requested models.NotificationChannel, recipient Recipient) models.NotificationChannel {
	channel := requested
	if channel == "" {
		channel = f.defaultChannel
	}
	if channel != models.ChannelEmail && recipient.Address(channel) == "" {
		return models.ChannelEmail
	}
	return channel
}

// Notify performs the fanout and returns the records it wrote.
func (f *Fanout) Notify(ctx context.Context, req Request) []models.Notification {
	records := make([]models.Notification, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		record := f.newRecord(req.Event, req.Template, recipient, f.resolveChannel(req.Channel, recipient))
		if err := f.notifications.Create(ctx, record); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("template", string(req.Template)).
				Str("user_id", recipient.UserID.String()).
				Msg("failed to record notification")
			continue
		}
		f.Deliver(ctx, req.Event, record, recipient, req.Note)
		records = append(records, *record)
	}
	return records
}

func (f *Fanout) newRecord(event *models.Event, tmpl Template, recipient Recipient, channel models.NotificationChannel) *models.Notification {
	record := &models.Notification{
		UserID:    recipient.UserID,
		Type:      tmpl.Type(),
		Template:  string(tmpl),
		Channel:   channel,
		Recipient: recipient.Address(channel),
		Status:    models.NotificationPending,
	}
	if event != nil {
		id := event.ID
		record.EventID = &id
		record.EventTitle = event.Title
	}
	return record
}

// Deliver renders and sends an already stored record and writes back the
// outcome. The record's Success flag mirrors the channel result.
func (f *Fanout) Deliver(ctx context.Context, event *models.Event, record *models.Notification, recipient Recipient, note string) {
	tmpl := Template(record.Template)
	if record.Recipient == "" {
		record.Recipient = recipient.Address(record.Channel)
	}

	result := f.send(ctx, event, record, tmpl, recipient, note)

	sentAt := f.now()
	record.SentAt = &sentAt
	record.Success = result.Success
	record.Error = result.Error
	record.Status = models.NotificationSent
	if !result.Success {
		record.Status = models.NotificationFailed
		logging.Ctx(ctx).Warn().
			Str("template", record.Template).
			Str("channel", string(record.Channel)).
			Str("user_id", record.UserID.String()).
			Str("error", result.Error).
			Msg("notification delivery failed")
	}
	metrics.RecordNotification(record.Template, string(record.Channel), result.Success)

	if err := f.notifications.MarkResult(ctx, record); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("notification_id", record.ID.String()).
			Msg("failed to store notification result")
	}
}

func (f *Fanout) send(ctx context.Context, event *models.Event, record *models.Notification, tmpl Template, recipient Recipient, note string) Result {
	subject, body, err := Render(tmpl, event, recipient, note, f.loc)
	if err != nil {
		return Failed(err)
	}
	record.Subject, record.Body = subject, body

	channel, ok := f.channels[record.Channel]
	if !ok {
		return Result{Error: "no transport configured for channel " + string(record.Channel)}
	}
	if record.Recipient == "" {
		return Result{Error: "recipient has no address for channel " + string(record.Channel)}
	}
	return channel.Send(ctx, Delivery{
		To:      record.Recipient,
		Name:    recipient.Name,
		Subject: subject,
		Body:    body,
	})
}
