package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/handler"
	"github.com/sakif/media-backend/internal/model"
	sqliteRepo "github.com/sakif/media-backend/internal/repository/sqlite"
	"github.com/sakif/media-backend/internal/service"
	"github.com/sakif/media-backend/internal/storage"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

// testEnv runs the real handlers, services, in-memory SQLite and a LocalStore
// in a temp dir. Only the network is missing.
type testEnv struct {
	router    http.Handler
	mediaRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := storage.NewLocalStore(t.TempDir(), "http://media.test")
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	passwords := auth.NewPasswordService(bcrypt.MinCost)

	users := service.NewUserService(db, db, passwords, files, logger)
	authService := service.NewAuthService(users, tokens, passwords, logger)
	videos := service.NewVideoService(db, files, logger)

	requireAuth := auth.RequireAuth(tokens, authService, logger)
	authHandler := handler.NewAuthHandler(authService, nil, logger)
	userHandler := handler.NewUserHandler(users, 1<<20, logger)
	videoHandler := handler.NewVideoHandler(videos, 1<<20, logger)

	r := chi.NewRouter()
	r.Route("/auth", authHandler.Routes)
	r.Route("/users", func(r chi.Router) { userHandler.Routes(r, requireAuth) })
	r.Route("/videos", func(r chi.Router) { videoHandler.Routes(r, requireAuth) })

	return &testEnv{router: r, mediaRoot: files.Root()}
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return e.do(t, method, path, token, "application/json", &buf)
}

// signUp registers username and logs in, returning the user and a token.
func (e *testEnv) signUp(t *testing.T, username string) (model.User, string) {
	t.Helper()
	rr := e.doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "password": "secret123", "firstName": strings.ToUpper(username[:1]) + username[1:],
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username, "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res struct {
		User        model.User `json:"user"`
		AccessToken string     `json:"accessToken"`
	}
	decode(t, rr, &res)
	return res.User, res.AccessToken
}

// filePart is one file in a multipart request.
type filePart struct {
	field, name, contentType, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.WriteString(part, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func (e *testEnv) uploadVideo(t *testing.T, token, title string) model.Video {
	t.Helper()
	ct, body := multipartBody(t, map[string]string{"title": title, "description": "about " + title},
		filePart{"video", "clip.mp4", "video/mp4", "video bytes"},
		filePart{"cover", "cover.png", "image/png", "cover bytes"},
	)
	rr := e.do(t, http.MethodPost, "/videos", token, ct, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var v model.Video
	decode(t, rr, &v)
	return v
}

// onDisk maps a media URL to its file under the media root.
func (e *testEnv) onDisk(t *testing.T, mediaURL string) string {
	t.Helper()
	u, err := url.Parse(mediaURL)
	require.NoError(t, err)
	return filepath.Join(e.mediaRoot, filepath.FromSlash(u.Path))
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var e handler.ErrorResponse
	decode(t, rr, &e)
	return e
}
