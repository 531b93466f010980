package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/eventhub/config"
	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/middleware"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
	"github.com/farellandr/eventhub/internal/notify/notifytest"
	"github.com/farellandr/eventhub/internal/store/storetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJobToken = "job-token"

type testServer struct {
	t      *testing.T
	app    *App
	router *gin.Engine
	stores *storetest.Stores
	email  *notifytest.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{LoginRatePerMinute: 1000},
		Auth: config.AuthConfig{
			JWTSecret:    "test-secret",
			TokenTTL:     time.Hour,
			JobToken:     testJobToken,
			TicketSecret: "ticket-secret",
		},
		Notify: config.NotifyConfig{
			DefaultChannel:   string(models.ChannelEmail),
			Timezone:         "UTC",
			PendingBatchSize: 100,
		},
		Uploads: config.UploadsConfig{BasePath: t.TempDir()},
	}

	stores := storetest.NewStores()
	email := notifytest.NewRecorder(models.ChannelEmail)
	app, err := NewApp(cfg, nil, Stores{
		Users:         stores.Users,
		Events:        stores.Events,
		Registrations: stores.Registrations,
		Notifications: stores.Notifications,
	}, []notify.Channel{email})
	require.NoError(t, err)

	router, err := NewRouter(app)
	require.NoError(t, err)

	return &testServer{t: t, app: app, router: router, stores: stores, email: email}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// signup registers and logs in a user, returning the bearer token.
func (s *testServer) signup(username string) (string, models.User) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/login", "", gin.H{"login": username, "password": "secret123"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	res := decode[loginResponse](s.t, w)
	return res.Token, res.User
}

func (s *testServer) promote(username string) {
	s.t.Helper()
	ctx := context.Background()
	user, err := s.stores.Users.GetByLogin(ctx, username)
	require.NoError(s.t, err)
	user.IsAdmin = true
	require.NoError(s.t, s.stores.Users.Save(ctx, user))
}

type eventResponse struct {
	Event models.Event `json:"event"`
}

type registrationResponse struct {
	Registration models.Registration `json:"registration"`
}

type eventPage struct {
	Items []models.Event `json:"items"`
	Total int64          `json:"total"`
}

func (s *testServer) createEvent(token string) models.Event {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/events", token, gin.H{
		"title":        "Jazz Night",
		"description":  "Live jazz in the park",
		"start_time":   time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"address":      "Central Park",
		"category":     "music",
		"pricing_mode": "free",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[eventResponse](s.t, w).Event
}

func TestHealthzAndCategories(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "music")
	assert.Contains(t, w.Body.String(), "community")

	w = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	token, user := s.signup("rina")
	assert.NotEmpty(t, token)
	assert.Equal(t, "rina@example.com", user.Email)

	w := s.do(http.MethodPost, "/v1/register", "", gin.H{
		"username": "rina",
		"email":    "other@example.com",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/v1/login", "", gin.H{"login": "rina@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, decode[models.User](t, w).ID)
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBindingErrorsNameTheField(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/v1/register", "", gin.H{"username": "rina", "password": "secret123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email", decode[helpers.ErrorResponse](t, w).Field)

	token, _ := s.signup("org")
	w = s.do(http.MethodPost, "/v1/events", token, gin.H{
		"title":        "Jazz Night",
		"start_time":   time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"address":      "Central Park",
		"category":     "bogus",
		"pricing_mode": "free",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "category", decode[helpers.ErrorResponse](t, w).Field)

	w = s.do(http.MethodGet, "/v1/events/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/events?page=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.signup("boss")
	s.promote("boss")
	orgToken, _ := s.signup("org")
	attendeeToken, attendee := s.signup("ana")
	strangerToken, _ := s.signup("eve")

	event := s.createEvent(orgToken)
	assert.Equal(t, models.ApprovalPending, event.ApprovalState)
	eventPath := "/v1/events/" + event.ID.String()

	// Pending events are hidden from the public.
	w := s.do(http.MethodGet, "/v1/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[eventPage](t, w).Total)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, eventPath, "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, eventPath, orgToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, eventPath+"/register", attendeeToken, nil).Code)

	// Only admins approve.
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/admin/events/"+event.ID.String()+"/approve", orgToken, nil).Code)
	w = s.do(http.MethodPost, "/v1/admin/events/"+event.ID.String()+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[eventResponse](t, w).Event.IsApproved)

	w = s.do(http.MethodGet, "/v1/events?search=jazz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[eventPage](t, w).Total)

	// Registration with an empty body uses the account's details.
	w = s.do(http.MethodPost, eventPath+"/register", attendeeToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registration := decode[registrationResponse](t, w).Registration
	assert.Equal(t, attendee.Email, registration.Email)
	assert.Len(t, s.email.To(attendee.Email), 1)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, eventPath+"/register", attendeeToken, nil).Code)

	w = s.do(http.MethodGet, "/v1/me/registrations", attendeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), registration.ID.String())

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, eventPath+"/registrations", orgToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, eventPath+"/registrations", strangerToken, nil).Code)

	// Ticket QR and check-in.
	qrPath := "/v1/registrations/" + registration.ID.String() + "/qr"
	w = s.do(http.MethodGet, qrPath, attendeeToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEqual(t, http.StatusOK, s.do(http.MethodGet, qrPath, strangerToken, nil).Code)

	attendeeUser, err := s.stores.Users.GetByID(context.Background(), attendee.ID)
	require.NoError(t, err)
	qrData, err := s.app.Registrations.Ticket(context.Background(), access.ActorFromUser(attendeeUser), registration.ID)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, eventPath+"/checkin", strangerToken, gin.H{"qr_data": qrData}).Code)
	w = s.do(http.MethodPost, eventPath+"/checkin", orgToken, gin.H{"qr_data": qrData})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[registrationResponse](t, w).Registration.CheckedInAt)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, eventPath+"/checkin", orgToken, gin.H{"qr_data": qrData}).Code)

	// Cancelling by event removes the registration.
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, eventPath+"/register", attendeeToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, eventPath+"/register", attendeeToken, nil).Code)

	// Only the owner or an admin deletes.
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, eventPath, strangerToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, eventPath, orgToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, eventPath, orgToken, nil).Code)
}

func TestUpdateEventOverHTTP(t *testing.T) {
	s := newTestServer(t)
	orgToken, _ := s.signup("org")
	strangerToken, _ := s.signup("eve")
	event := s.createEvent(orgToken)
	eventPath := "/v1/events/" + event.ID.String()

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPatch, eventPath, strangerToken, gin.H{"title": "Mine now"}).Code)

	w := s.do(http.MethodPatch, eventPath, orgToken, gin.H{"title": "Jazz Night Extended"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Jazz Night Extended", decode[eventResponse](t, w).Event.Title)

	w = s.do(http.MethodGet, "/v1/me/events", orgToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[eventPage](t, w).Total)
}

func TestAdminBanBlocksLogin(t *testing.T) {
	s := newTestServer(t)
	adminToken, admin := s.signup("boss")
	s.promote("boss")
	userToken, user := s.signup("spammer")
	banPath := "/v1/admin/users/" + user.ID.String() + "/ban"

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, banPath, userToken, gin.H{"reason": "spam"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, banPath, adminToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/admin/users/"+admin.ID.String()+"/ban", adminToken, gin.H{"reason": "oops"}).Code)

	w := s.do(http.MethodPost, banPath, adminToken, gin.H{"reason": "spam"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/login", "", gin.H{"login": "spammer", "password": "secret123"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, decode[helpers.ErrorResponse](t, w).Message, "spam")

	// An existing token stops working too.
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/me", userToken, nil).Code)

	w = s.do(http.MethodGet, "/v1/admin/users?banned=true", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), user.ID.String())

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/admin/users/"+user.ID.String()+"/unban", adminToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/login", "", gin.H{"login": "spammer", "password": "secret123"}).Code)
}

func TestJobEndpoints(t *testing.T) {
	s := newTestServer(t)
	userToken, _ := s.signup("ana")
	adminToken, _ := s.signup("boss")
	s.promote("boss")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/jobs/reminders", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/jobs/reminders", userToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/jobs/reminders", adminToken, nil).Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/notifications/process", nil)
	req.Header.Set(middleware.JobTokenHeader, "wrong")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/jobs/notifications/process", nil)
	req.Header.Set(middleware.JobTokenHeader, testJobToken)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, notify.RunResult{}, decode[notify.RunResult](t, w))
}

func TestUploadEventImage(t *testing.T) {
	s := newTestServer(t)
	orgToken, _ := s.signup("org")
	event := s.createEvent(orgToken)

	upload := func(content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("image", "poster.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/v1/events/"+event.ID.String()+"/image", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+orgToken)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	w := upload(png)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[eventResponse](t, w).Event.ImagePath
	require.NotEmpty(t, first)
	_, err := os.Stat(first)
	require.NoError(t, err)

	w = upload([]byte("plain text is not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(png)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[eventResponse](t, w).Event.ImagePath
	assert.NotEqual(t, first, second)
	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err))
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.signup("boss")
	s.promote("boss")
	missing := uuid.NewString()

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/events/"+missing, adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/admin/events/"+missing+"/approve", adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/admin/users/"+missing+"/verify", adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/v1/registrations/"+missing, adminToken, nil).Code)
}
