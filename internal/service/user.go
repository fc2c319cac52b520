package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/auth"
	"github.com/sakif/media-backend/internal/model"
	"github.com/sakif/media-backend/internal/repository"
	"github.com/sakif/media-backend/internal/storage"
)

// UserService owns user records and their avatar files.
type UserService struct {
	users     repository.UserRepository
	videos    repository.VideoRepository
	passwords *auth.PasswordService
	files     storage.Store
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	videos repository.VideoRepository,
	passwords *auth.PasswordService,
	files storage.Store,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		videos:    videos,
		passwords: passwords,
		files:     files,
		logger:    logger,
	}
}

// LOOKUPS:
// The Find* methods pass the repository's comma-ok result straight through.
// Absence is not an error here; each caller decides what it means.

func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, bool, error) {
	return s.users.FindUserByID(ctx, id)
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*model.User, bool, error) {
	return s.users.FindUserByUsername(ctx, username)
}

func (s *UserService) FindByGoogleID(ctx context.Context, googleID string) (*model.User, bool, error) {
	return s.users.FindUserByGoogleID(ctx, googleID)
}

// ownsMedia reports whether url points into the media store. Such URLs may
// only enter a user row through an upload, never from client input.
func (s *UserService) ownsMedia(url string) bool {
	return url != "" && s.files.Owns(url)
}

// GetByID is the fail-loud lookup used by GET /users/{id}.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: getting user: %w", err)
	}
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

// Create inserts a user. Uniqueness is enforced by the store and surfaces as
// apperror.ErrConflict.
func (s *UserService) Create(ctx context.Context, user *model.User) error {
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return err
		}
		return fmt.Errorf("service: creating user: %w", err)
	}
	return nil
}

// Update applies a partial profile update and, optionally, a new avatar.
//
// Only the account owner may update a profile. A new password is re-hashed;
// an absent one leaves the stored hash untouched. Only the fields in the patch
// are written, so concurrent updates of different fields both stick. When a new
// avatar replaces one of ours, the old file is removed after the row is saved.
func (s *UserService) Update(ctx context.Context, requester *model.User, id string, patch model.UserPatch, avatar *storage.File) (*model.User, error) {
	if requester.ID != id {
		return nil, apperror.Forbidden("you can only modify your own profile")
	}

	if err := validateUserPatch(&patch); err != nil {
		return nil, err
	}

	changes := model.UserChanges{
		FirstName: patch.FirstName,
		LastName:  patch.LastName,
		Birthday:  patch.Birthday,
	}
	if patch.Password != nil {
		hash, err := s.passwords.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("service: hashing password: %w", err)
		}
		changes.PasswordHash = &hash
	}

	newAvatar := ""
	if avatar != nil {
		var err error
		newAvatar, err = s.files.Save(ctx, storage.FolderAvatars, *avatar)
		if err != nil {
			return nil, fmt.Errorf("service: saving avatar: %w", err)
		}
		changes.Avatar = &newAvatar
	}

	user, oldAvatar, err := s.users.UpdateUser(ctx, id, changes)
	if err != nil {
		removeFiles(ctx, s.files, s.logger, "user update failed", newAvatar)
		return nil, fmt.Errorf("service: updating user: %w", err)
	}

	if newAvatar != "" && oldAvatar != newAvatar && s.ownsMedia(oldAvatar) {
		removeFiles(ctx, s.files, s.logger, "avatar replaced", oldAvatar)
	}

	s.logger.InfoContext(ctx, "user updated", "user_id", user.ID, "avatar_changed", newAvatar != "")
	return user, nil
}

// Delete removes an account, its videos (by cascade) and all of their files.
//
// The file URLs are collected before the row goes away because the cascade
// removes the video rows that reference them.
func (s *UserService) Delete(ctx context.Context, requester *model.User, id string) error {
	if requester.ID != id {
		return apperror.Forbidden("you can only delete your own account")
	}

	user, ok, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service: loading user: %w", err)
	}
	if !ok {
		return apperror.NotFound("user", id)
	}

	media, err := s.videos.MediaURLsByUser(ctx, id)
	if err != nil {
		return fmt.Errorf("service: listing user media: %w", err)
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("service: deleting user: %w", err)
	}

	removeFiles(ctx, s.files, s.logger, "user deleted", append([]string{user.Avatar}, media...)...)

	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "videos_media", len(media))
	return nil
}

func validateUserPatch(p *model.UserPatch) error {
	if p.Password != nil {
		if err := validatePassword(*p.Password); err != nil {
			return err
		}
	}
	if p.FirstName != nil {
		first := strings.TrimSpace(*p.FirstName)
		if first == "" {
			return apperror.ValidationFailed("firstName", "firstName must not be empty")
		}
		if len(first) > MaxNameLength {
			return apperror.ValidationFailed("firstName", fmt.Sprintf("firstName must be %d characters or less", MaxNameLength))
		}
		p.FirstName = &first
	}
	if p.LastName != nil {
		last := strings.TrimSpace(*p.LastName)
		if len(last) > MaxNameLength {
			return apperror.ValidationFailed("lastName", fmt.Sprintf("lastName must be %d characters or less", MaxNameLength))
		}
		p.LastName = &last
	}
	return nil
}
