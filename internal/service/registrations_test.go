package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
)

func TestRegisterAndCancel(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	attendee, attendeeActor := f.user("attendee")
	event := f.approvedEvent(organizer, nil, f.eventInput(eventStart))

	registration, err := f.registrations.Register(f.ctx, attendeeActor, event.ID, RegisterInput{AdditionalAttendees: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, registration.PartySize())
	assert.Equal(t, attendee.Email, registration.Email, "contact defaults to the account")
	assert.Equal(t, attendee.Name, registration.Name)

	confirmations := f.stores.DB.NotificationsFor(attendee.ID, string(notify.RegistrationConfirmation))
	require.Len(t, confirmations, 1)
	assert.Contains(t, confirmations[0].Body, "Party size: 3")

	reminder, err := f.stores.Notifications.GetReminder(f.ctx, attendee.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, reminder.Status)
	assert.True(t, reminder.ScheduledAt.Equal(eventStart.AddDate(0, 0, -1)))

	require.NoError(t, f.registrations.Cancel(f.ctx, attendeeActor, registration.ID))
	assert.Equal(t, 0, f.stores.DB.RegistrationCount())

	cancellations := f.stores.DB.NotificationsFor(attendee.ID, string(notify.RegistrationCancelled))
	require.Len(t, cancellations, 1)
	assert.Equal(t, models.NotificationCancellation, cancellations[0].Type)

	_, err = f.stores.Notifications.GetReminder(f.ctx, attendee.ID, event.ID)
	assert.Error(t, err, "cancelling drops the pending reminder")

	err = f.registrations.Cancel(f.ctx, attendeeActor, registration.ID)
	requireKind(t, err, apperr.KindNotFound)
	assert.Equal(t, apperr.CodeRegistrationNotFound, apperr.CodeOf(err))
}

func TestRegisterTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	_, attendee := f.user("attendee")
	event := f.approvedEvent(organizer, nil, f.eventInput(eventStart))

	_, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{})
	require.NoError(t, err)

	_, err = f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{})
	requireKind(t, err, apperr.KindConflict)
	assert.Equal(t, apperr.CodeAlreadyRegistered, apperr.CodeOf(err))
	assert.Equal(t, 1, f.stores.DB.RegistrationCount())
}

func TestRegisterForUnapprovedEvent(t *testing.T) {
	f := newFixture(t)
	_, owner := f.user("owner")
	_, otherOrganizer := f.user("other")

	event, err := f.events.Create(f.ctx, owner, f.eventInput(eventStart))
	require.NoError(t, err)
	require.False(t, event.IsApproved)

	_, err = f.registrations.Register(f.ctx, otherOrganizer, event.ID, RegisterInput{})
	requireKind(t, err, apperr.KindNotFound)
	assert.Equal(t, 0, f.stores.DB.RegistrationCount())
}

func TestRegisterRules(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	_, attendee := f.user("attendee")

	_, err := f.registrations.Register(f.ctx, nil, uuid.New(), RegisterInput{})
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = f.registrations.Register(f.ctx, attendee, uuid.New(), RegisterInput{})
	requireKind(t, err, apperr.KindNotFound)

	closed := f.eventInput(eventStart)
	closed.RegistrationDeadline = f.now.Add(-time.Hour).Format(time.RFC3339)
	closedEvent := f.approvedEvent(organizer, nil, closed)
	_, err = f.registrations.Register(f.ctx, attendee, closedEvent.ID, RegisterInput{})
	requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, apperr.CodeRegistrationClosed, apperr.CodeOf(err))

	open := f.approvedEvent(organizer, nil, f.eventInput(eventStart))
	_, err = f.registrations.Register(f.ctx, attendee, open.ID, RegisterInput{AdditionalAttendees: -1})
	requireKind(t, err, apperr.KindValidation)
}

func TestRegisterWithTicketTier(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	_, attendee := f.user("attendee")

	in := f.eventInput(eventStart)
	in.PricingMode = "paid"
	in.TicketTiers = []TicketTierInput{{Name: "General", Price: 15000}, {Name: "VIP", Price: 75000}}
	event := f.approvedEvent(organizer, nil, in)
	vip, ok := event.Tier(event.TicketTiers[1].ID)
	require.True(t, ok)

	_, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{TicketTierID: ptr(uuid.New())})
	requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "ticket_tier_id", apperr.FieldOf(err))

	registration, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{
		TicketTierID: ptr(vip.ID),
		Email:        "guest@example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, vip.Name, registration.TicketTierName)
	assert.Equal(t, vip.Price, registration.TicketPrice)
	assert.Equal(t, "guest@example.org", registration.Email)
	assert.Len(t, f.email.To("guest@example.org"), 1)
}

func TestCancelForEventAndOwnership(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	_, attendee := f.user("attendee")
	_, stranger := f.user("stranger")
	_, adminActor := f.user("admin", admin)
	event := f.approvedEvent(organizer, nil, f.eventInput(eventStart))

	registration, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{})
	require.NoError(t, err)

	err = f.registrations.Cancel(f.ctx, stranger, registration.ID)
	requireKind(t, err, apperr.KindForbidden)

	err = f.registrations.CancelForEvent(f.ctx, stranger, event.ID)
	requireKind(t, err, apperr.KindNotFound)

	require.NoError(t, f.registrations.CancelForEvent(f.ctx, attendee, event.ID))

	again, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{})
	require.NoError(t, err)
	require.NoError(t, f.registrations.Cancel(f.ctx, adminActor, again.ID))
}

func TestListRegistrations(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	_, attendee := f.user("attendee")
	_, stranger := f.user("stranger")
	event := f.approvedEvent(organizer, nil, f.eventInput(eventStart))

	_, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{})
	require.NoError(t, err)

	forEvent, err := f.registrations.ListForEvent(f.ctx, organizer, event.ID)
	require.NoError(t, err)
	assert.Len(t, forEvent, 1)

	_, err = f.registrations.ListForEvent(f.ctx, stranger, event.ID)
	requireKind(t, err, apperr.KindForbidden)

	mine, err := f.registrations.ListMine(f.ctx, attendee)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := f.registrations.ListMine(f.ctx, stranger)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestTicketCheckIn(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	_, attendee := f.user("attendee")
	_, stranger := f.user("stranger")
	event := f.approvedEvent(organizer, nil, f.eventInput(eventStart))
	other := f.approvedEvent(organizer, nil, f.eventInput(eventStart.AddDate(0, 0, 1)))

	registration, err := f.registrations.Register(f.ctx, attendee, event.ID, RegisterInput{})
	require.NoError(t, err)

	_, err = f.registrations.Ticket(f.ctx, stranger, registration.ID)
	requireKind(t, err, apperr.KindForbidden)

	payload, err := f.registrations.Ticket(f.ctx, attendee, registration.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload, "registration:"+registration.ID.String()+";"))

	tampered := payload[:len(payload)-4] + "beef"
	_, err = f.registrations.CheckIn(f.ctx, organizer, event.ID, tampered)
	requireKind(t, err, apperr.KindValidation)

	_, err = f.registrations.CheckIn(f.ctx, organizer, other.ID, payload)
	requireKind(t, err, apperr.KindValidation)

	_, err = f.registrations.CheckIn(f.ctx, organizer, event.ID, "garbage")
	requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "qr_data", apperr.FieldOf(err))

	_, err = f.registrations.CheckIn(f.ctx, stranger, event.ID, payload)
	requireKind(t, err, apperr.KindForbidden)

	checked, err := f.registrations.CheckIn(f.ctx, organizer, event.ID, payload)
	require.NoError(t, err)
	require.NotNil(t, checked.CheckedInAt)
	assert.True(t, checked.CheckedInAt.Equal(f.now))

	_, err = f.registrations.CheckIn(f.ctx, organizer, event.ID, payload)
	requireKind(t, err, apperr.KindConflict)
	assert.Equal(t, apperr.CodeAlreadyCheckedIn, apperr.CodeOf(err))

	_, err = f.registrations.Ticket(f.ctx, attendee, registration.ID)
	requireKind(t, err, apperr.KindConflict)
}

func TestReminderJobsSendOncePerRegistrant(t *testing.T) {
	f := newFixture(t)
	_, organizer := f.user("organizer", verified)
	scheduled, scheduledActor := f.user("scheduled")
	direct, _ := f.user("direct")
	event := f.approvedEvent(organizer, nil, f.eventInput(eventStart))

	_, err := f.registrations.Register(f.ctx, scheduledActor, event.ID, RegisterInput{})
	require.NoError(t, err)
	// A registration without a scheduled reminder, as left by a failed
	// schedule, is picked up by the daily job.
	require.NoError(t, f.stores.Registrations.Create(f.ctx, &models.Registration{
		EventID: event.ID,
		UserID:  direct.ID,
		Name:    direct.Name,
		Email:   direct.Email,
	}))

	f.now = eventStart.AddDate(0, 0, -1).Add(-2 * time.Hour)
	system := access.System()

	first, err := f.jobs.RunReminders(f.ctx, system)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Events)
	assert.Equal(t, 1, first.Sent)
	assert.Equal(t, 1, first.Skipped)

	second, err := f.jobs.RunReminders(f.ctx, system)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 2, second.Skipped)

	f.now = eventStart.AddDate(0, 0, -1)
	pending, err := f.jobs.ProcessPending(f.ctx, system, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pending.Sent)

	again, err := f.jobs.ProcessPending(f.ctx, system, 0)
	require.NoError(t, err)
	assert.Zero(t, again.Sent)

	for _, id := range []uuid.UUID{scheduled.ID, direct.ID} {
		reminders := f.stores.DB.NotificationsFor(id, string(notify.EventReminder))
		require.Len(t, reminders, 1)
		assert.Equal(t, models.NotificationSent, reminders[0].Status)
	}
}

func TestJobsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	_, user := f.user("user")

	_, err := f.jobs.RunReminders(f.ctx, user)
	requireKind(t, err, apperr.KindForbidden)
	_, err = f.jobs.ProcessPending(f.ctx, nil, 10)
	requireKind(t, err, apperr.KindUnauthorized)
}
