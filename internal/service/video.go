package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
	"github.com/sakif/media-backend/internal/repository"
	"github.com/sakif/media-backend/internal/storage"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
)

// VideoService handles video records and their media files.
//
// OWNERSHIP:
// Only the uploader may change or delete a video. Anyone may read it or add a
// view. Ownership failures are Forbidden.
type VideoService struct {
	videos repository.VideoRepository
	files  storage.Store
	logger *slog.Logger
}

func NewVideoService(videos repository.VideoRepository, files storage.Store, logger *slog.Logger) *VideoService {
	return &VideoService{
		videos: videos,
		files:  files,
		logger: logger,
	}
}

// VideoInput carries the metadata of a new video.
type VideoInput struct {
	Title       string
	Description string
}

// VideoUpdate is a creator's edit. nil fields are left unchanged; a non-nil
// Video or Cover replaces that file.
type VideoUpdate struct {
	Title       *string
	Description *string
	Video       *storage.File
	Cover       *storage.File
}

func (u VideoUpdate) isEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Video == nil && u.Cover == nil
}

// Create stores both files and inserts the video owned by owner.
func (s *VideoService) Create(ctx context.Context, owner *model.User, in VideoInput, video, cover storage.File) (*model.Video, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	link, err := s.files.Save(ctx, storage.FolderVideos, video)
	if err != nil {
		return nil, fmt.Errorf("service: saving video file: %w", err)
	}
	coverURL, err := s.files.Save(ctx, storage.FolderCovers, cover)
	if err != nil {
		removeFiles(ctx, s.files, s.logger, "video create failed", link)
		return nil, fmt.Errorf("service: saving cover file: %w", err)
	}

	v := &model.Video{
		Title:       title,
		Description: description,
		Link:        link,
		Cover:       coverURL,
		UserID:      owner.ID,
	}
	if err := s.videos.CreateVideo(ctx, v); err != nil {
		removeFiles(ctx, s.files, s.logger, "video create failed", link, coverURL)
		return nil, fmt.Errorf("service: creating video: %w", err)
	}

	s.logger.InfoContext(ctx, "video created", "video_id", v.ID, "user_id", owner.ID)
	return v, nil
}

// UpdateFromCreator applies an owner's edit.
//
// The repository update is itself guarded by user_id, so even if ownership
// changed between the check and the write the row could not be modified by
// someone else. Replaced files are removed after the update commits.
func (s *VideoService) UpdateFromCreator(ctx context.Context, requester *model.User, id string, upd VideoUpdate) (*model.Video, error) {
	if upd.isEmpty() {
		return nil, apperror.ValidationFailed("", "nothing to update")
	}

	current, err := s.ownedVideo(ctx, requester, id)
	if err != nil {
		return nil, err
	}

	patch := model.VideoPatch{}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if upd.Description != nil {
		description := strings.TrimSpace(*upd.Description)
		if err := validateDescription(description); err != nil {
			return nil, err
		}
		patch.Description = &description
	}

	var uploaded []string
	if upd.Video != nil {
		link, err := s.files.Save(ctx, storage.FolderVideos, *upd.Video)
		if err != nil {
			return nil, fmt.Errorf("service: saving video file: %w", err)
		}
		patch.Link = &link
		uploaded = append(uploaded, link)
	}
	if upd.Cover != nil {
		cover, err := s.files.Save(ctx, storage.FolderCovers, *upd.Cover)
		if err != nil {
			removeFiles(ctx, s.files, s.logger, "video update failed", uploaded...)
			return nil, fmt.Errorf("service: saving cover file: %w", err)
		}
		patch.Cover = &cover
		uploaded = append(uploaded, cover)
	}

	updated, err := s.videos.UpdateVideo(ctx, id, requester.ID, patch)
	if err != nil {
		removeFiles(ctx, s.files, s.logger, "video update failed", uploaded...)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: updating video: %w", err)
	}

	var replaced []string
	if patch.Link != nil && current.Link != *patch.Link {
		replaced = append(replaced, current.Link)
	}
	if patch.Cover != nil && current.Cover != *patch.Cover {
		replaced = append(replaced, current.Cover)
	}
	removeFiles(ctx, s.files, s.logger, "video media replaced", replaced...)

	s.logger.InfoContext(ctx, "video updated", "video_id", id, "files_replaced", len(replaced))
	return updated, nil
}

// AddView increments the view counter. No authentication is required.
func (s *VideoService) AddView(ctx context.Context, id string) (*model.Video, error) {
	v, err := s.videos.IncrementViews(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: adding view: %w", err)
	}
	return v, nil
}

// Delete removes an owned video and then its files.
func (s *VideoService) Delete(ctx context.Context, requester *model.User, id string) error {
	current, err := s.ownedVideo(ctx, requester, id)
	if err != nil {
		return err
	}

	if err := s.videos.DeleteVideo(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service: deleting video: %w", err)
	}

	removeFiles(ctx, s.files, s.logger, "video deleted", current.Link, current.Cover)

	s.logger.InfoContext(ctx, "video deleted", "video_id", id, "user_id", requester.ID)
	return nil
}

func (s *VideoService) GetOne(ctx context.Context, id string) (*model.Video, error) {
	v, ok, err := s.videos.FindVideoByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: getting video: %w", err)
	}
	if !ok {
		return nil, apperror.NotFound("video", id)
	}
	return v, nil
}

// ListByUser returns a page of a user's videos, newest first.
func (s *VideoService) ListByUser(ctx context.Context, userID string, skip, take int) ([]model.Video, error) {
	videos, err := s.videos.ListVideosByUser(ctx, userID, pageOptions(skip, take))
	if err != nil {
		return nil, fmt.Errorf("service: listing videos: %w", err)
	}
	return videos, nil
}

// Search returns a page of videos matching query, most viewed first.
func (s *VideoService) Search(ctx context.Context, query string, skip, take int) ([]model.Video, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("query", "query is required")
	}

	videos, err := s.videos.SearchVideos(ctx, query, pageOptions(skip, take))
	if err != nil {
		return nil, fmt.Errorf("service: searching videos: %w", err)
	}
	return videos, nil
}

// ownedVideo loads a video and checks that requester uploaded it.
func (s *VideoService) ownedVideo(ctx context.Context, requester *model.User, id string) (*model.Video, error) {
	v, err := s.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.UserID != requester.ID {
		return nil, apperror.Forbidden("you are not the creator of this video")
	}
	return v, nil
}

func validateTitle(title string) error {
	if title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return apperror.ValidationFailed("title", fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return nil
}

func validateDescription(description string) error {
	if len(description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description", fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}
