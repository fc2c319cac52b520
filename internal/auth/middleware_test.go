package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
)

// fakeValidator resolves ids from a map, like AuthService.ValidateUser would.
type fakeValidator struct {
	users map[string]*model.User
	err   error
}

func (f *fakeValidator) ValidateUser(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.Unauthorized("user does not exist")
	}
	return u, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// protected builds RequireAuth around a handler that echoes the user id.
func protected(t *testing.T, ts *TokenService, v UserValidator) http.Handler {
	t.Helper()
	return RequireAuth(ts, v, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok, "user must be in context behind RequireAuth")
		w.Write([]byte(u.ID))
	}))
}

func TestRequireAuth_ValidToken(t *testing.T) {
	ts := newTestTokenService(t)
	v := &fakeValidator{users: map[string]*model.User{"u1": {ID: "u1", Username: "alice"}}}
	token, _ := ts.Generate("u1", "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	protected(t, ts, v).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", rr.Body.String())
}

func TestRequireAuth_LowercaseScheme(t *testing.T) {
	ts := newTestTokenService(t)
	v := &fakeValidator{users: map[string]*model.User{"u1": {ID: "u1"}}}
	token, _ := ts.Generate("u1", "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr := httptest.NewRecorder()

	protected(t, ts, v).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAuth_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	v := &fakeValidator{users: map[string]*model.User{"u1": {ID: "u1"}}}

	good, _ := ts.Generate("u1", "alice")
	expired, _ := ts.GenerateWithDuration("u1", "alice", -time.Minute)
	deleted, _ := ts.Generate("gone", "bob")

	tests := []struct {
		name        string
		header      string
		wantMessage string
	}{
		{"no header", "", "valid authentication required"},
		{"wrong scheme", "Basic " + good, "valid authentication required"},
		{"empty bearer", "Bearer ", "valid authentication required"},
		{"garbage token", "Bearer abc.def.ghi", "invalid token"},
		{"expired token", "Bearer " + expired, "token expired"},
		{"deleted account", "Bearer " + deleted, "user does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			protected(t, ts, v).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"])
			assert.Equal(t, tt.wantMessage, body["message"])
		})
	}
}

func TestRequireAuth_StoreFailureIs500(t *testing.T) {
	ts := newTestTokenService(t)
	v := &fakeValidator{err: errors.New("database is locked")}
	token, _ := ts.Generate("u1", "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	protected(t, ts, v).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "database is locked")
}

func TestUserFromContext_Anonymous(t *testing.T) {
	u, ok := UserFromContext(context.Background())

	assert.False(t, ok)
	assert.Nil(t, u)
}
