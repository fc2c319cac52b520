package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/model"
	"github.com/sakif/media-backend/internal/repository"
	"github.com/sakif/media-backend/internal/storage"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeRepo is an in-memory repository.UserRepository and
// repository.VideoRepository. It follows the same contract as the real
// stores: comma-ok lookups, NotFound on missing rows, Conflict on duplicates.
type fakeRepo struct {
	mu     sync.Mutex
	users  map[string]model.User
	videos map[string]model.Video
	nextID int

	// last pagination options passed to a list or search call
	lastList repository.ListOptions

	// set to a non-nil error to simulate a database failure
	createUserErr  error
	updateUserErr  error
	updateVideoErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  make(map[string]model.User),
		videos: make(map[string]model.Video),
	}
}

func (f *fakeRepo) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createUserErr != nil {
		return f.createUserErr
	}
	for _, u := range f.users {
		if user.Username != "" && u.Username == user.Username {
			return apperror.Conflict("username already exists")
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return apperror.Conflict("google account already registered")
		}
	}
	user.ID = f.newID("user")
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = *user
	return nil
}

func (f *fakeRepo) findUser(match func(model.User) bool) (*model.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if match(u) {
			found := u
			return &found, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeRepo) FindUserByID(_ context.Context, id string) (*model.User, bool, error) {
	return f.findUser(func(u model.User) bool { return u.ID == id })
}

func (f *fakeRepo) FindUserByUsername(_ context.Context, username string) (*model.User, bool, error) {
	return f.findUser(func(u model.User) bool { return username != "" && u.Username == username })
}

func (f *fakeRepo) FindUserByGoogleID(_ context.Context, googleID string) (*model.User, bool, error) {
	return f.findUser(func(u model.User) bool { return googleID != "" && u.GoogleID == googleID })
}

func (f *fakeRepo) UpdateUser(_ context.Context, id string, c model.UserChanges) (*model.User, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateUserErr != nil {
		return nil, "", f.updateUserErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, "", apperror.NotFound("user", id)
	}
	previous := u.Avatar
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.FirstName != nil {
		u.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		u.LastName = *c.LastName
	}
	if c.Birthday != nil {
		b := *c.Birthday
		u.Birthday = &b
	}
	if c.Avatar != nil {
		u.Avatar = *c.Avatar
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return &u, previous, nil
}

func (f *fakeRepo) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	for vid, v := range f.videos {
		if v.UserID == id {
			delete(f.videos, vid)
		}
	}
	return nil
}

func (f *fakeRepo) CreateVideo(_ context.Context, video *model.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	video.ID = f.newID("video")
	video.Views = 0
	video.CreatedAt = time.Now().UTC()
	video.UpdatedAt = video.CreatedAt
	f.videos[video.ID] = *video
	return nil
}

func (f *fakeRepo) FindVideoByID(_ context.Context, id string) (*model.Video, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.videos[id]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (f *fakeRepo) UpdateVideo(_ context.Context, id, ownerID string, patch model.VideoPatch) (*model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateVideoErr != nil {
		return nil, f.updateVideoErr
	}
	v, ok := f.videos[id]
	if !ok || v.UserID != ownerID {
		return nil, apperror.NotFound("video", id)
	}
	if patch.Title != nil {
		v.Title = *patch.Title
	}
	if patch.Description != nil {
		v.Description = *patch.Description
	}
	if patch.Link != nil {
		v.Link = *patch.Link
	}
	if patch.Cover != nil {
		v.Cover = *patch.Cover
	}
	v.UpdatedAt = time.Now().UTC()
	f.videos[id] = v
	return &v, nil
}

func (f *fakeRepo) IncrementViews(_ context.Context, id string) (*model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.videos[id]
	if !ok {
		return nil, apperror.NotFound("video", id)
	}
	v.Views++
	f.videos[id] = v
	return &v, nil
}

func (f *fakeRepo) DeleteVideo(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.videos[id]; !ok {
		return apperror.NotFound("video", id)
	}
	delete(f.videos, id)
	return nil
}

// ListVideosByUser records the options it was called with so pagination
// defaults can be asserted.
func (f *fakeRepo) ListVideosByUser(_ context.Context, userID string, opts repository.ListOptions) ([]model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastList = opts
	var out []model.Video
	for _, v := range f.videos {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts), nil
}

func (f *fakeRepo) SearchVideos(_ context.Context, term string, opts repository.ListOptions) ([]model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastList = opts
	term = strings.ToLower(term)
	var out []model.Video
	for _, v := range f.videos {
		if strings.Contains(strings.ToLower(v.Title), term) || strings.Contains(strings.ToLower(v.Description), term) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	return page(out, opts), nil
}

func (f *fakeRepo) MediaURLsByUser(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var urls []string
	for _, v := range f.videos {
		if v.UserID == userID {
			urls = append(urls, v.Link, v.Cover)
		}
	}
	return urls, nil
}

func page(videos []model.Video, opts repository.ListOptions) []model.Video {
	if opts.Offset >= len(videos) {
		return []model.Video{}
	}
	end := min(opts.Offset+opts.Limit, len(videos))
	return videos[opts.Offset:end]
}

// fakeStore is an in-memory storage.Store. URLs outside its base are
// rejected with a validation error, exactly like LocalStore and S3Store.
type fakeStore struct {
	mu        sync.Mutex
	files     map[string]string // url → body
	deleted   []string
	n         int
	saveErr   error
	deleteErr error
}

const fakeStoreBase = "http://media.test/uploads/"

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string]string)}
}

func (s *fakeStore) Save(_ context.Context, folder string, f storage.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return "", s.saveErr
	}
	body, err := io.ReadAll(f.Body)
	if err != nil {
		return "", err
	}
	s.n++
	url := fmt.Sprintf("%s%s/%d-%s", fakeStoreBase, folder, s.n, f.Name)
	s.files[url] = string(body)
	return url, nil
}

func (s *fakeStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !strings.HasPrefix(url, fakeStoreBase) {
		return apperror.ValidationFailed("url", "not a stored media url")
	}
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, url)
	delete(s.files, url)
	return nil
}

func (s *fakeStore) Owns(url string) bool {
	return strings.HasPrefix(url, fakeStoreBase)
}

func (s *fakeStore) has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[url]
	return ok
}

func (s *fakeStore) deletedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func upload(name, body string) storage.File {
	return storage.File{
		Name:        name,
		ContentType: "application/octet-stream",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func uploadPtr(name, body string) *storage.File {
	f := upload(name, body)
	return &f
}

func strPtr(s string) *string { return &s }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServices bundles every service over one fake repo and store.
type testServices struct {
	repo   *fakeRepo
	files  *fakeStore
	tokens *auth.TokenService
	users  *UserService
	auth   *AuthService
	videos *VideoService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// bcrypt.MinCost keeps the tests fast
	passwords := auth.NewPasswordService(bcrypt.MinCost)
	repo := newFakeRepo()
	files := newFakeStore()
	logger := discardLogger()

	users := NewUserService(repo, repo, passwords, files, logger)
	return &testServices{
		repo:   repo,
		files:  files,
		tokens: tokens,
		users:  users,
		auth:   NewAuthService(users, tokens, passwords, logger),
		videos: NewVideoService(repo, files, logger),
	}
}

// register creates a credential account with password "secret123".
func (s *testServices) register(t *testing.T, username string) *model.User {
	t.Helper()

	u, err := s.auth.Register(context.Background(), RegisterInput{
		Username:  username,
		Password:  "secret123",
		FirstName: strings.ToUpper(username[:1]) + username[1:],
	})
	if err != nil {
		t.Fatalf("Register(%q): %v", username, err)
	}
	return u
}

func (s *testServices) uploadVideo(t *testing.T, owner *model.User, title string) *model.Video {
	t.Helper()

	v, err := s.videos.Create(context.Background(), owner,
		VideoInput{Title: title, Description: "about " + title},
		upload("clip.mp4", "video bytes"),
		upload("cover.png", "cover bytes"),
	)
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return v
}

var errDatabaseDown = errors.New("database is on fire")
