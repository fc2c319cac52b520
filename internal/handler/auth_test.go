package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/handler"
	"github.com/sakif/media-backend/internal/model"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username":  "alice",
		"password":  "secret123",
		"firstName": "Alice",
		"birthday":  "1995-03-14",
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "$2a$")

	var u model.User
	decode(t, rr, &u)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	require.NotNil(t, u.Birthday)
	assert.Equal(t, "1995-03-14", u.Birthday.Format("2006-01-02"))
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "alice")

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"duplicate username", `{"username":"alice","password":"secret123","firstName":"A"}`, http.StatusConflict, ""},
		{"short password", `{"username":"bob","password":"123","firstName":"Bob"}`, http.StatusBadRequest, "password"},
		{"bad birthday", `{"username":"bob","password":"secret123","firstName":"Bob","birthday":"yesterday"}`, http.StatusBadRequest, "birthday"},
		{"unknown field", `{"username":"bob","password":"secret123","firstName":"Bob","role":"admin"}`, http.StatusBadRequest, ""},
		{"malformed JSON", `{"username":`, http.StatusBadRequest, ""},
		{"empty body", ``, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/auth/register", "", "application/json", strings.NewReader(tt.body))

			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.field, errorBody(t, rr).Field)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	alice, token := env.signUp(t, "alice")
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, alice.ID)

	t.Run("wrong password is 401", func(t *testing.T) {
		rr := env.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope-nope"})

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "username or password is wrong", errorBody(t, rr).Message)
	})

	t.Run("unknown username is 404 with the same message", func(t *testing.T) {
		rr := env.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "secret123"})

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "username or password is wrong", errorBody(t, rr).Message)
	})
}

func TestJSONBodyIsCapped(t *testing.T) {
	env := newTestEnv(t)
	huge := `{"username":"` + strings.Repeat("a", 2<<20) + `","password":"secret123"}`

	rr := env.do(t, http.MethodPost, "/auth/login", "", "application/json", strings.NewReader(huge))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, errorBody(t, rr).Message, "byte limit")
}

func TestGoogleSignIn_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	profile := map[string]string{
		"googleId":  "g-42",
		"email":     "carol@gmail.com",
		"firstName": "Carol",
		"avatar":    "https://lh3.googleusercontent.com/a/carol",
	}

	var first, second struct {
		User        model.User `json:"user"`
		AccessToken string     `json:"accessToken"`
	}
	rr := env.doJSON(t, http.MethodPost, "/auth/google", "", profile)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &first)

	rr = env.doJSON(t, http.MethodPost, "/auth/google", "", profile)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decode(t, rr, &second)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEmpty(t, second.AccessToken)

	me := env.do(t, http.MethodGet, "/users/me", second.AccessToken, "", nil)
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestGoogleSignIn_AvatarCannotReachOtherUsersMedia(t *testing.T) {
	env := newTestEnv(t)
	_, victimToken := env.signUp(t, "victim")
	v := env.uploadVideo(t, victimToken, "cats")
	victimFile := env.onDisk(t, v.Link)

	// a stored media URL is refused outright
	rr := env.doJSON(t, http.MethodPost, "/auth/google", "", map[string]string{
		"googleId": "g-mallory", "firstName": "Mallory", "avatar": v.Link,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "avatar", errorBody(t, rr).Field)

	// the same path on another host is accepted as an external image
	// but is never treated as a local file
	foreign := strings.Replace(v.Link, "http://media.test", "http://evil.example", 1)
	rr = env.doJSON(t, http.MethodPost, "/auth/google", "", map[string]string{
		"googleId": "g-mallory", "firstName": "Mallory", "avatar": foreign,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res struct {
		User        model.User `json:"user"`
		AccessToken string     `json:"accessToken"`
	}
	decode(t, rr, &res)

	rr = env.do(t, http.MethodDelete, "/users/"+res.User.ID, res.AccessToken, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.FileExists(t, victimFile)
}

func TestGoogleRoutesAbsentWhenNotConfigured(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/auth/google/login", "", "", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// googleRouter mounts only the auth routes with a real provider. The tests
// below never reach the token exchange, so no service is needed.
func googleRouter() http.Handler {
	provider := auth.NewGoogleProvider("client-id", "client-secret", "http://media.test/auth/google/callback")
	h := handler.NewAuthHandler(nil, provider, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/auth", h.Routes)
	return r
}

func TestGoogleLogin_RedirectsWithStateCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	googleRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "oauth_state", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.Equal(t, cookies[0].Value, loc.Query().Get("state"))
}

func TestGoogleCallback_Guards(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		cookie string
		status int
	}{
		{name: "no cookie", query: "?state=abc&code=x", status: http.StatusBadRequest},
		{name: "state mismatch", query: "?state=abc&code=x", cookie: "other", status: http.StatusBadRequest},
		{name: "denied", query: "?state=abc&error=access_denied", cookie: "abc", status: http.StatusUnauthorized},
		{name: "missing code", query: "?state=abc", cookie: "abc", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			googleRouter().ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
