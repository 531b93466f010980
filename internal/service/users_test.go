package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/notify"
)

func TestSignupAndLogin(t *testing.T) {
	f := newFixture(t)

	user, err := f.users.Signup(f.ctx, SignupInput{
		Username: "rina",
		Email:    "Rina@Example.com",
		Password: "hunter22",
		Name:     "Rina",
	})
	require.NoError(t, err)
	assert.Equal(t, "rina@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.Password)

	for _, login := range []string{"rina", "rina@example.com"} {
		token, loggedIn, err := f.users.Login(f.ctx, login, "hunter22")
		require.NoError(t, err, login)
		assert.Equal(t, user.ID, loggedIn.ID)

		authed, err := f.users.Authenticate(f.ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, authed.ID)
	}

	_, _, err = f.users.Login(f.ctx, "rina", "wrong")
	requireKind(t, err, apperr.KindUnauthorized)
	_, _, err = f.users.Login(f.ctx, "nobody", "hunter22")
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestSignupRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.Signup(f.ctx, SignupInput{Username: "rina", Email: "rina@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = f.users.Signup(f.ctx, SignupInput{Username: "rina", Email: "other@example.com", Password: "hunter22"})
	requireKind(t, err, apperr.KindConflict)
	assert.Equal(t, apperr.CodeDuplicateAccount, apperr.CodeOf(err))

	_, err = f.users.Signup(f.ctx, SignupInput{Username: "rina2", Email: "RINA@example.com", Password: "hunter22"})
	requireKind(t, err, apperr.KindConflict)
}

func TestSignupValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Signup(f.ctx, SignupInput{Username: "a@b", Email: "a@example.com", Password: "hunter22"})
	requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "username", apperr.FieldOf(err))

	_, err = f.users.Signup(f.ctx, SignupInput{Username: "short", Email: "s@example.com", Password: "123"})
	requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "password", apperr.FieldOf(err))
}

func TestBannedUserCannotLogin(t *testing.T) {
	f := newFixture(t)
	target, targetActor := f.user("spammer")
	_, adminActor := f.user("admin", admin)

	token, _, err := f.users.Login(f.ctx, "spammer", "secret123")
	require.NoError(t, err)

	banned, err := f.users.Ban(f.ctx, adminActor, target.ID, "spam")
	require.NoError(t, err)
	assert.True(t, banned.IsBanned)

	_, _, err = f.users.Login(f.ctx, "spammer", "secret123")
	requireKind(t, err, apperr.KindBanned)
	assert.Contains(t, err.Error(), "spam")

	_, err = f.users.Authenticate(f.ctx, token)
	requireKind(t, err, apperr.KindBanned)

	notes := f.stores.DB.NotificationsFor(target.ID, string(notify.AccountUpdated))
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Body, "spam")

	_, err = f.users.Unban(f.ctx, adminActor, target.ID)
	require.NoError(t, err)
	_, _, err = f.users.Login(f.ctx, "spammer", "secret123")
	assert.NoError(t, err)

	_, err = f.users.Ban(f.ctx, targetActor, target.ID, "self")
	requireKind(t, err, apperr.KindForbidden)
}

func TestBanRules(t *testing.T) {
	f := newFixture(t)
	target, _ := f.user("target")
	_, adminActor := f.user("admin", admin)

	_, err := f.users.Ban(f.ctx, adminActor, target.ID, "  ")
	requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, "reason", apperr.FieldOf(err))

	_, err = f.users.Ban(f.ctx, adminActor, adminActor.UserID, "testing")
	requireKind(t, err, apperr.KindValidation)
}

func TestVerifyOrganizer(t *testing.T) {
	f := newFixture(t)
	organizer, _ := f.user("organizer")
	_, adminActor := f.user("admin", admin)

	updated, err := f.users.Verify(f.ctx, adminActor, organizer.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsVerifiedOrganizer)

	_, organizerActor, err := f.relogin("organizer")
	require.NoError(t, err)
	event, err := f.events.Create(f.ctx, organizerActor, f.eventInput(eventStart))
	require.NoError(t, err)
	assert.True(t, event.IsApproved)

	updated, err = f.users.Unverify(f.ctx, adminActor, organizer.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsVerifiedOrganizer)
	assert.Len(t, f.stores.DB.NotificationsFor(organizer.ID, string(notify.AccountUpdated)), 2)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.user("rina")

	token, _, err := f.users.Login(f.ctx, "rina", "secret123")
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.users.Authenticate(f.ctx, token)
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = f.users.Authenticate(f.ctx, "not-a-token")
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestListUsersAndNotifications(t *testing.T) {
	f := newFixture(t)
	target, targetActor := f.user("target")
	f.user("bystander")
	_, adminActor := f.user("admin", admin)

	_, err := f.users.Ban(f.ctx, adminActor, target.ID, "spam")
	require.NoError(t, err)

	all, err := f.users.List(f.ctx, adminActor, UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)

	banned, err := f.users.List(f.ctx, adminActor, UserFilter{Banned: ptr(true)})
	require.NoError(t, err)
	require.Len(t, banned.Items, 1)
	assert.Equal(t, target.ID, banned.Items[0].ID)

	_, err = f.users.List(f.ctx, targetActor, UserFilter{})
	requireKind(t, err, apperr.KindForbidden)

	notifications, err := f.users.Notifications(f.ctx, targetActor, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, string(notify.AccountUpdated), notifications[0].Template)

	me, err := f.users.Me(f.ctx, targetActor)
	require.NoError(t, err)
	assert.Equal(t, target.ID, me.ID)

	_, err = f.users.Me(f.ctx, nil)
	requireKind(t, err, apperr.KindUnauthorized)
}
