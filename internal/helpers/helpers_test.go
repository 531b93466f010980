package helpers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/eventhub/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondWithAppError(c, err)
	return w
}

func TestRespondWithAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		field  string
	}{
		{"validation", apperr.Validation("title", "is required"), http.StatusBadRequest, "", "title"},
		{"unauthorized", apperr.Unauthorized("login first"), http.StatusUnauthorized, "", ""},
		{"forbidden", apperr.Forbidden("no"), http.StatusForbidden, "", ""},
		{"banned", apperr.Banned("spam"), http.StatusForbidden, "", ""},
		{"not found", apperr.RegistrationNotFound(), http.StatusNotFound, apperr.CodeRegistrationNotFound, ""},
		{"conflict", apperr.AlreadyRegistered(), http.StatusConflict, apperr.CodeAlreadyRegistered, ""},
		{"closed", apperr.RegistrationClosed(), http.StatusBadRequest, apperr.CodeRegistrationClosed, "registration_deadline"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := respond(tt.err)
			assert.Equal(t, tt.status, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.field, body.Field)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRespondWithAppErrorHidesInternalDetail(t *testing.T) {
	w := respond(apperr.Internal("database error", errors.New("pq: connection refused")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestBannedMessageCarriesReason(t *testing.T) {
	w := respond(apperr.Banned("spam"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "banned_account", body.Error)
	assert.Contains(t, body.Message, "spam")
}

func TestQueryInt(t *testing.T) {
	n, err := QueryInt("page", "", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = QueryInt("page", "3", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = QueryInt("limit", "-1", 10)
	assert.Equal(t, "limit", apperr.FieldOf(err))
	_, err = QueryInt("limit", "ten", 10)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestParseUUID(t *testing.T) {
	_, err := ParseUUID("id", "nope")
	assert.Equal(t, "id", apperr.FieldOf(err))

	none, err := ParseOptionalUUID("organizer", "")
	require.NoError(t, err)
	assert.Nil(t, none)

	flag, err := ParseOptionalBool("banned", "true")
	require.NoError(t, err)
	assert.True(t, *flag)
}

func TestSignParts(t *testing.T) {
	sig := SignParts("secret", "a", "b", "c")
	assert.Len(t, sig, 64)
	assert.True(t, VerifyParts("secret", sig, "a", "b", "c"))
	assert.False(t, VerifyParts("secret", sig, "a", "b", "d"))
	assert.False(t, VerifyParts("other", sig, "a", "b", "c"))
}

func TestSignatureHeaders(t *testing.T) {
	gen := NewSignatureHeaderGenerator("client", "secret", "/v1/messages")
	gen.RequestID = "req-1"
	gen.Now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }

	headers := gen.GetHeaders([]byte(`{"to":"+62"}`))
	assert.Equal(t, "2025-06-10T09:00:00Z", headers["Request-Timestamp"])
	assert.Equal(t, "req-1", headers["Request-Id"])
	assert.Equal(t, gen.GenerateSignature(headers["Digest"], headers["Request-Timestamp"]), headers["Signature"])
}
