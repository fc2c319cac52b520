package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives every test its own fresh database that disappears with the
// connection. New caps the pool at one connection, so the whole test talks to
// the same in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username, firstName, lastName string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		PasswordHash: "$2a$04$hash",
		FirstName:    firstName,
		LastName:     lastName,
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// =========================================================================
// CREATE / FIND
// =========================================================================

func TestCreateUser_SetsIDAndTimestamps(t *testing.T) {
	db := newTestDB(t)

	u := createTestUser(t, db, "alice", "Alice", "Liddell")

	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)
}

func TestFindUserByUsername_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	birthday := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

	original := &model.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$04$hash",
		FirstName:    "Alice",
		LastName:     "Liddell",
		Birthday:     &birthday,
	}
	require.NoError(t, db.CreateUser(context.Background(), original))

	found, ok, err := db.FindUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, original.ID, found.ID)
	assert.Equal(t, "alice@example.com", found.Email)
	assert.Equal(t, "$2a$04$hash", found.PasswordHash)
	assert.Equal(t, "Liddell", found.LastName)
	assert.Empty(t, found.GoogleID)
	require.NotNil(t, found.Birthday)
	assert.True(t, birthday.Equal(*found.Birthday))
}

func TestFindUser_MissingIsNotAnError(t *testing.T) {
	db := newTestDB(t)

	tests := []struct {
		name string
		find func() (*model.User, bool, error)
	}{
		{"by id", func() (*model.User, bool, error) {
			return db.FindUserByID(context.Background(), "nope")
		}},
		{"by username", func() (*model.User, bool, error) {
			return db.FindUserByUsername(context.Background(), "nobody")
		}},
		{"by google id", func() (*model.User, bool, error) {
			return db.FindUserByGoogleID(context.Background(), "g-404")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok, err := tt.find()
			assert.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, u)
		})
	}
}

func TestCreateUser_DuplicateUsernameIsConflict(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice", "Alice", "")

	err := db.CreateUser(context.Background(), &model.User{Username: "alice", FirstName: "Other"})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateUser() error = %v, want ErrConflict", err)
	}
}

// Google-only accounts have no username. NULLs never collide under UNIQUE,
// so several of them can coexist.
func TestCreateUser_ManyGoogleAccountsWithoutUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &model.User{GoogleID: "g-1", FirstName: "One"}))
	require.NoError(t, db.CreateUser(ctx, &model.User{GoogleID: "g-2", FirstName: "Two"}))

	found, ok, err := db.FindUserByGoogleID(ctx, "g-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Two", found.FirstName)
	assert.Empty(t, found.Username)
}

func TestCreateUser_DuplicateGoogleIDIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &model.User{GoogleID: "g-1", FirstName: "One"}))
	err := db.CreateUser(ctx, &model.User{GoogleID: "g-1", FirstName: "Again"})

	assert.ErrorIs(t, err, apperror.ErrConflict)
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice", "Alice", "")
	createdAt := u.CreatedAt

	first := "Alicia"
	avatar := "http://localhost:8080/uploads/avatars/a.png"
	updated, previous, err := db.UpdateUser(ctx, u.ID, model.UserChanges{FirstName: &first, Avatar: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "", previous)
	assert.Equal(t, "Alicia", updated.FirstName)

	found, ok, err := db.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alicia", found.FirstName)
	assert.Equal(t, avatar, found.Avatar)
	assert.Equal(t, u.PasswordHash, found.PasswordHash, "unset fields keep their value")
	assert.True(t, createdAt.Equal(found.CreatedAt), "created_at must not change")
	assert.False(t, found.UpdatedAt.Before(createdAt))

	second := "http://localhost:8080/uploads/avatars/b.png"
	_, previous, err = db.UpdateUser(ctx, u.ID, model.UserChanges{Avatar: &second})
	require.NoError(t, err)
	assert.Equal(t, avatar, previous, "the replaced avatar is handed back for cleanup")
}

func TestUpdateUser_StaleWritersDoNotUndoEachOther(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice", "Alice", "")

	first, last := "Alicia", "Liddell"
	_, _, err := db.UpdateUser(ctx, u.ID, model.UserChanges{FirstName: &first})
	require.NoError(t, err)
	_, _, err = db.UpdateUser(ctx, u.ID, model.UserChanges{LastName: &last})
	require.NoError(t, err)

	found, _, err := db.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", found.FirstName)
	assert.Equal(t, "Liddell", found.LastName)
}

func TestUpdateUser_EmptyLastNameIsWritten(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice", "Alice", "")
	last := "Liddell"
	_, _, err := db.UpdateUser(ctx, u.ID, model.UserChanges{LastName: &last})
	require.NoError(t, err)

	empty := ""
	updated, _, err := db.UpdateUser(ctx, u.ID, model.UserChanges{LastName: &empty})
	require.NoError(t, err)
	assert.Equal(t, "", updated.LastName)
}

func TestUpdateUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	first := "x"

	_, _, err := db.UpdateUser(context.Background(), "ghost", model.UserChanges{FirstName: &first})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteUser_CascadesToVideos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, db, "alice", "Alice", "")
	other := createTestUser(t, db, "bob", "Bob", "")
	v1 := createTestVideo(t, db, owner.ID, "first")
	createTestVideo(t, db, owner.ID, "second")
	kept := createTestVideo(t, db, other.ID, "bob's")

	require.NoError(t, db.DeleteUser(ctx, owner.ID))

	_, ok, err := db.FindVideoByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, ok, "owned video should be removed with its user")

	_, ok, err = db.FindVideoByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.True(t, ok, "other users' videos must survive")
}

func TestDeleteUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.DeleteUser(context.Background(), "ghost")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
