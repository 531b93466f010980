package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/store/storetest"
)

type MockChannel struct {
	mock.Mock
	name models.NotificationChannel
}

func (m *MockChannel) Name() models.NotificationChannel { return m.name }

func (m *MockChannel) Send(ctx context.Context, delivery Delivery) Result {
	args := m.Called(ctx, delivery)
	return args.Get(0).(Result)
}

var fixedNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func testEvent() *models.Event {
	return &models.Event{
		ID:        uuid.New(),
		Title:     "Harbour Cleanup",
		StartTime: fixedNow.Add(48 * time.Hour),
		Address:   "Pier 4",
	}
}

func recipient(name string) Recipient {
	return Recipient{UserID: uuid.New(), Name: name, Email: name + "@example.com"}
}

func TestNotifyRecordsOneAttemptPerRecipient(t *testing.T) {
	stores := storetest.NewStores()
	email := &MockChannel{name: models.ChannelEmail}
	email.On("Send", mock.Anything, mock.AnythingOfType("notify.Delivery")).Return(Result{Success: true})

	fanout := NewFanout(stores.Notifications, []Channel{email}, WithClock(func() time.Time { return fixedNow }))
	event := testEvent()

	records := fanout.Notify(context.Background(), Request{
		Event:      event,
		Template:   EventUpdated,
		Recipients: []Recipient{recipient("ana"), recipient("ben"), recipient("cy")},
	})

	require.Len(t, records, 3)
	email.AssertNumberOfCalls(t, "Send", 3)
	for _, n := range stores.DB.Notifications() {
		assert.Equal(t, models.NotificationUpdate, n.Type)
		assert.Equal(t, models.ChannelEmail, n.Channel)
		assert.Equal(t, models.NotificationSent, n.Status)
		assert.True(t, n.Success)
		assert.Equal(t, event.ID, *n.EventID)
		assert.Equal(t, "Update: Harbour Cleanup", n.Subject)
		require.NotNil(t, n.SentAt)
		assert.Equal(t, fixedNow, *n.SentAt)
	}
}

func TestNotifyRecordsFailuresWithoutRetrying(t *testing.T) {
	stores := storetest.NewStores()
	email := &MockChannel{name: models.ChannelEmail}
	email.On("Send", mock.Anything, mock.Anything).Return(Result{Error: "smtp down"}).Once()

	fanout := NewFanout(stores.Notifications, []Channel{email})
	records := fanout.Notify(context.Background(), Request{
		Event:      testEvent(),
		Template:   EventCancelled,
		Recipients: []Recipient{recipient("ana")},
	})

	require.Len(t, records, 1)
	email.AssertExpectations(t)
	got := stores.DB.Notifications()[0]
	assert.False(t, got.Success)
	assert.Equal(t, models.NotificationFailed, got.Status)
	assert.Equal(t, "smtp down", got.Error)
	assert.Equal(t, models.NotificationCancellation, got.Type)
}

func TestNotifyFallsBackToEmailWithoutPhone(t *testing.T) {
	stores := storetest.NewStores()
	email := &MockChannel{name: models.ChannelEmail}
	sms := &MockChannel{name: models.ChannelSMS}
	email.On("Send", mock.Anything, mock.Anything).Return(Result{Success: true})
	sms.On("Send", mock.Anything, mock.Anything).Return(Result{Success: true})

	fanout := NewFanout(stores.Notifications, []Channel{email, sms})
	withPhone := recipient("ana")
	withPhone.Phone = "+15550100"
	noPhone := recipient("ben")

	fanout.Notify(context.Background(), Request{
		Event:      testEvent(),
		Template:   EventUpdated,
		Recipients: []Recipient{withPhone, noPhone},
		Channel:    models.ChannelSMS,
	})

	sms.AssertNumberOfCalls(t, "Send", 1)
	email.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, "+15550100", sms.Calls[0].Arguments.Get(1).(Delivery).To)
	assert.Equal(t, "ben@example.com", email.Calls[0].Arguments.Get(1).(Delivery).To)
}

func TestNotifyMissingTransportIsRecorded(t *testing.T) {
	stores := storetest.NewStores()
	fanout := NewFanout(stores.Notifications, nil)

	records := fanout.Notify(context.Background(), Request{
		Event:      testEvent(),
		Template:   EventFlagged,
		Recipients: []Recipient{recipient("ana")},
		Note:       "spam",
	})

	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].Error, "no transport")
	assert.Contains(t, records[0].Body, "Reason: spam")
}

func TestAccountNotificationHasNoEvent(t *testing.T) {
	stores := storetest.NewStores()
	email := &MockChannel{name: models.ChannelEmail}
	email.On("Send", mock.Anything, mock.Anything).Return(Result{Success: true})
	fanout := NewFanout(stores.Notifications, []Channel{email})

	records := fanout.Notify(context.Background(), Request{
		Template:   AccountUpdated,
		Recipients: []Recipient{recipient("ana")},
		Note:       "Your account has been verified as an organizer.",
	})

	require.Len(t, records, 1)
	assert.Nil(t, records[0].EventID)
	assert.Contains(t, records[0].Body, "verified as an organizer")
}

func TestTemplateTypes(t *testing.T) {
	assert.Equal(t, models.NotificationReminder, EventReminder.Type())
	assert.Equal(t, models.NotificationCancellation, EventCancelled.Type())
	assert.Equal(t, models.NotificationCancellation, RegistrationCancelled.Type())
	assert.Equal(t, models.NotificationUpdate, EventUpdated.Type())
	assert.Equal(t, models.NotificationUpdate, RegistrationConfirmation.Type())
	assert.Equal(t, models.NotificationUpdate, EventFlagged.Type())
}

func TestRenderEveryTemplate(t *testing.T) {
	event := testEvent()
	r := Recipient{Name: "Ana", TierName: "VIP", PartySize: 3}
	for tmpl := range templates {
		subject, body, err := Render(tmpl, event, r, "note", time.UTC)
		require.NoError(t, err, tmpl)
		assert.NotEmpty(t, subject, tmpl)
		assert.Contains(t, body, "Ana", tmpl)
	}

	_, _, err := Render(Template("Nope"), event, r, "", nil)
	assert.Error(t, err)
}

func TestRenderConfirmationIncludesTierAndParty(t *testing.T) {
	_, body, err := Render(RegistrationConfirmation, testEvent(), Recipient{Name: "Ana", TierName: "VIP", PartySize: 3}, "", time.UTC)
	require.NoError(t, err)
	assert.Contains(t, body, "Ticket: VIP")
	assert.Contains(t, body, "Party size: 3")
}
