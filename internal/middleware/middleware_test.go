package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	users map[string]*models.User
}

func (f fakeAuth) Authenticate(ctx context.Context, token string) (*models.User, error) {
	user, ok := f.users[token]
	if !ok {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	if user.IsBanned {
		return nil, apperr.Banned(user.BanReason)
	}
	return user, nil
}

func newAuth() (fakeAuth, *models.User) {
	user := &models.User{ID: uuid.New(), Username: "rina"}
	return fakeAuth{users: map[string]*models.User{
		"good":   user,
		"banned": {ID: uuid.New(), IsBanned: true, BanReason: "spam"},
	}}, user
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func whoami(c *gin.Context) {
	actor := ActorFrom(c)
	if actor == nil {
		c.String(http.StatusOK, "anonymous")
		return
	}
	if actor.UserID == uuid.Nil {
		c.String(http.StatusOK, "system")
		return
	}
	c.String(http.StatusOK, actor.UserID.String())
}

func TestJWTAuthMiddleware(t *testing.T) {
	auth, user := newAuth()
	r := gin.New()
	r.GET("/me", JWTAuthMiddleware(auth), whoami)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "authorization header required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"banned", "Bearer banned", http.StatusForbidden, "spam"},
		{"valid", "Bearer good", http.StatusOK, user.ID.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	auth, user := newAuth()
	r := gin.New()
	r.GET("/events", OptionalAuthMiddleware(auth), whoami)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, "anonymous", w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = serve(r, req)
	assert.Equal(t, user.ID.String(), w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestJobAuthMiddleware(t *testing.T) {
	auth, _ := newAuth()
	r := gin.New()
	r.POST("/jobs", JobAuthMiddleware("job-secret", auth), whoami)

	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set(JobTokenHeader, "job-secret")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "system", w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set(JobTokenHeader, "guess")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	disabled := gin.New()
	disabled.POST("/jobs", JobAuthMiddleware("", auth), whoami)
	req = httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req.Header.Set(JobTokenHeader, "")
	assert.Equal(t, http.StatusUnauthorized, serve(disabled, req).Code)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2)
	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/login", nil)).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(r, httptest.NewRequest(http.MethodPost, "/login", nil)).Code)

	unlimited := NewRateLimiter(0)
	for i := 0; i < 50; i++ {
		assert.True(t, unlimited.Allow("10.0.0.1"))
	}
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(5).WithClock(func() time.Time { return now })

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(fmt.Sprintf("10.0.%d.%d", i/250, i%250)))
	}
	assert.Equal(t, 100, limiter.clients())

	now = now.Add(limiterIdleTTL / 2)
	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.Equal(t, 101, limiter.clients(), "buckets younger than the idle TTL are kept")

	now = now.Add(limiterIdleTTL + time.Second)
	assert.True(t, limiter.Allow("192.168.1.2"))
	assert.Equal(t, 1, limiter.clients(), "only the client seen just now remains")
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = serve(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
