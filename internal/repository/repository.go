// Package repository declares the persistence interfaces the services depend on.
//
// Two implementations exist:
//   - repository/sqlite:    database/sql over modernc.org/sqlite (default, tests)
//   - repository/gormstore: gorm over PostgreSQL
//
// LOOKUPS USE COMMA-OK:
// Every Find* method returns (row, found, err). A missing row is not an error
// at this layer: err is reserved for real store failures. Each service call
// site decides what absence means (Conflict, NotFound, Unauthorized, or
// "create it").
//
// Mutations that target a row which does not exist return apperror.ErrNotFound,
// and unique-constraint violations return apperror.ErrConflict.
package repository

import (
	"context"
	"io"

	"github.com/sakif/media-backend/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByID(ctx context.Context, id string) (*model.User, bool, error)
	FindUserByUsername(ctx context.Context, username string) (*model.User, bool, error)
	FindUserByGoogleID(ctx context.Context, googleID string) (*model.User, bool, error)
	// UpdateUser applies the non-nil fields in a single statement and returns
	// the updated row together with the avatar URL it held before the write.
	UpdateUser(ctx context.Context, id string, changes model.UserChanges) (*model.User, string, error)
	// DeleteUser removes the user; owned videos are removed by cascade.
	DeleteUser(ctx context.Context, id string) error
}

type VideoRepository interface {
	CreateVideo(ctx context.Context, video *model.Video) error
	FindVideoByID(ctx context.Context, id string) (*model.Video, bool, error)
	// UpdateVideo applies the non-nil patch fields to the video if it is owned
	// by ownerID and returns the updated row.
	UpdateVideo(ctx context.Context, id, ownerID string, patch model.VideoPatch) (*model.Video, error)
	// IncrementViews performs views = views + 1 in a single statement.
	IncrementViews(ctx context.Context, id string) (*model.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	ListVideosByUser(ctx context.Context, userID string, opts ListOptions) ([]model.Video, error)
	SearchVideos(ctx context.Context, term string, opts ListOptions) ([]model.Video, error)
	// MediaURLsByUser returns the link and cover of every video owned by userID.
	MediaURLsByUser(ctx context.Context, userID string) ([]string, error)
}

// Store is a complete backend: both repositories plus lifecycle.
type Store interface {
	UserRepository
	VideoRepository
	Ping(ctx context.Context) error
	io.Closer
}
