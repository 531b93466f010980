package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/metrics"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/store"
)

const defaultPendingBatch = 500

// Reminders owns the reminder lifecycle: scheduling at registration time,
// the daily job for tomorrow's events and the processor that sends due
// scheduled records. At most one reminder record exists per (user, event);
// the store enforces it with a unique index so overlapping runs cannot
// double send.
type Reminders struct {
	events        store.EventStore
	registrations store.RegistrationStore
	notifications store.NotificationStore
	fanout        *Fanout
}

type RunResult struct {
	Events  int `json:"events"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func NewReminders(events store.EventStore, registrations store.RegistrationStore, notifications store.NotificationStore, fanout *Fanout) *Reminders {
	return &Reminders{
		events:        events,
		registrations: registrations,
		notifications: notifications,
		fanout:        fanout,
	}
}

// ReminderTime is one calendar day before start in loc.
func ReminderTime(start time.Time, loc *time.Location) time.Time {
	return start.In(loc).AddDate(0, 0, -1)
}

// TomorrowWindow returns [tomorrow 00:00, the day after 00:00) in loc.
func TomorrowWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}

// Schedule stores a pending reminder for the registrant. It is a no-op if
// the registrant already has a reminder for the event.
func (r *Reminders) Schedule(ctx context.Context, event *models.Event, registration *models.Registration) error {
	recipient := RecipientFromRegistration(registration)
	record := r.fanout.newRecord(event, EventReminder, recipient, r.fanout.resolveChannel("", recipient))
	at := ReminderTime(event.StartTime, r.fanout.loc)
	record.ScheduledAt = &at

	if _, err := r.notifications.CreateReminderOnce(ctx, record); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

// Reschedule drops every unsent reminder for the registrants and schedules
// them again from the event's current start time. Reminders already sent
// are kept and not repeated.
func (r *Reminders) Reschedule(ctx context.Context, event *models.Event, registrations []models.Registration) {
	for i := range registrations {
		registration := &registrations[i]
		if err := r.notifications.DeletePendingReminder(ctx, registration.UserID, event.ID); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("event_id", event.ID.String()).
				Str("user_id", registration.UserID.String()).Msg("failed to drop pending reminder")
			continue
		}
		if err := r.Schedule(ctx, event, registration); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("event_id", event.ID.String()).
				Str("user_id", registration.UserID.String()).Msg("failed to reschedule reminder")
		}
	}
}

// Cancel drops the registrant's unsent reminder.
func (r *Reminders) Cancel(ctx context.Context, registration *models.Registration) error {
	return r.notifications.DeletePendingReminder(ctx, registration.UserID, registration.EventID)
}

// RunDaily sends a reminder to every registrant of an approved event that
// starts tomorrow and has no reminder record yet.
func (r *Reminders) RunDaily(ctx context.Context) (result RunResult, err error) {
	defer func() {
		metrics.RecordJob("reminders", err)
		metrics.RemindersCreated.Add(float64(result.Sent + result.Failed))
	}()

	now := r.fanout.now()
	from, to := TomorrowWindow(now, r.fanout.loc)
	approved := models.ApprovalApproved
	events, _, err := r.events.List(ctx, store.EventFilter{Approval: &approved, From: &from, To: &to})
	if err != nil {
		return result, fmt.Errorf("list tomorrow's events: %w", err)
	}

	for i := range events {
		event := &events[i]
		result.Events++
		registrations, err := r.registrations.ListByEvent(ctx, event.ID)
		if err != nil {
			return result, fmt.Errorf("list registrations for %s: %w", event.ID, err)
		}
		for j := range registrations {
			if err := r.remind(ctx, event, &registrations[j], now, &result); err != nil {
				return result, err
			}
		}
	}

	logging.Ctx(ctx).Info().
		Time("from", from).Time("to", to).
		Int("events", result.Events).Int("sent", result.Sent).
		Int("failed", result.Failed).Int("skipped", result.Skipped).
		Msg("reminder job finished")
	return result, nil
}

func (r *Reminders) remind(ctx context.Context, event *models.Event, registration *models.Registration, now time.Time, result *RunResult) error {
	exists, err := r.notifications.HasReminder(ctx, registration.UserID, event.ID)
	if err != nil {
		return fmt.Errorf("check reminder: %w", err)
	}
	if exists {
		result.Skipped++
		return nil
	}

	recipient := RecipientFromRegistration(registration)
	record := r.fanout.newRecord(event, EventReminder, recipient, r.fanout.resolveChannel("", recipient))
	record.ScheduledAt = &now
	inserted, err := r.notifications.CreateReminderOnce(ctx, record)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	if !inserted {
		result.Skipped++
		return nil
	}

	r.fanout.Deliver(ctx, event, record, recipient, "")
	if record.Success {
		result.Sent++
	} else {
		result.Failed++
	}
	return nil
}

// ProcessPending sends scheduled records that are due. A record whose
// event or registration is gone, or whose event has already started, is
// marked failed instead. A record for an event that is awaiting approval
// stays pending and is retried on the next run.
func (r *Reminders) ProcessPending(ctx context.Context, limit int) (result RunResult, err error) {
	defer func() { metrics.RecordJob("pending", err) }()

	if limit <= 0 {
		limit = defaultPendingBatch
	}
	now := r.fanout.now()
	due, err := r.notifications.ListDue(ctx, now, limit)
	if err != nil {
		return result, fmt.Errorf("list due notifications: %w", err)
	}

	for i := range due {
		record := &due[i]
		event, registration, reason, err := r.resolve(ctx, record, now)
		if err != nil {
			return result, err
		}
		if reason == awaitingApproval {
			result.Skipped++
			continue
		}
		if reason != "" {
			r.markFailed(ctx, record, reason, now)
			result.Failed++
			continue
		}

		r.fanout.Deliver(ctx, event, record, RecipientFromRegistration(registration), "")
		if record.Success {
			result.Sent++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// awaitingApproval is the one resolve reason that does not fail a record.
const awaitingApproval = "event is not approved"

// resolve loads what a due record needs, or explains why it can't be sent.
func (r *Reminders) resolve(ctx context.Context, record *models.Notification, now time.Time) (*models.Event, *models.Registration, string, error) {
	if record.EventID == nil {
		return nil, nil, "notification has no event", nil
	}
	event, err := r.events.GetByID(ctx, *record.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, "event no longer exists", nil
	}
	if err != nil {
		return nil, nil, "", fmt.Errorf("load event: %w", err)
	}
	if !event.StartTime.After(now) {
		return nil, nil, "event already started", nil
	}
	if event.ApprovalState != models.ApprovalApproved {
		return nil, nil, awaitingApproval, nil
	}

	registration, err := r.registrations.GetByEventAndUser(ctx, event.ID, record.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, "registration no longer exists", nil
	}
	if err != nil {
		return nil, nil, "", fmt.Errorf("load registration: %w", err)
	}
	return event, registration, "", nil
}

func (r *Reminders) markFailed(ctx context.Context, record *models.Notification, reason string, now time.Time) {
	record.Status = models.NotificationFailed
	record.Success = false
	record.Error = reason
	record.SentAt = &now
	metrics.RecordNotification(record.Template, string(record.Channel), false)
	if err := r.notifications.MarkResult(ctx, record); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("notification_id", record.ID.String()).
			Msg("failed to store notification result")
	}
}
