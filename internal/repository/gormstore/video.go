package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/model"
	"github.com/sakif/media-backend/internal/repository"
)

func (s *Store) CreateVideo(ctx context.Context, video *model.Video) error {
	ownerID, ok := parseID(video.UserID)
	if !ok {
		return apperror.NotFound("user", video.UserID)
	}

	row := videoRow{
		Title:       video.Title,
		Description: video.Description,
		Link:        video.Link,
		Cover:       video.Cover,
		UserID:      ownerID,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", video.UserID)
		}
		return fmt.Errorf("gormstore: creating video: %w", err)
	}

	video.ID = row.ID.String()
	video.Views = 0
	video.CreatedAt = row.CreatedAt.UTC()
	video.UpdatedAt = row.UpdatedAt.UTC()
	return nil
}

func (s *Store) FindVideoByID(ctx context.Context, id string) (*model.Video, bool, error) {
	uid, ok := parseID(id)
	if !ok {
		return nil, false, nil
	}
	row, err := findVideo(s.db.WithContext(ctx), uid)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("gormstore: finding video: %w", err)
	}
	return row.toModel(), true, nil
}

func findVideo(tx *gorm.DB, id any) (*videoRow, error) {
	var row videoRow
	if err := tx.Preload("User").Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateVideo patches the video only when ownerID owns it. The update and the
// re-read run in one transaction so the returned row is the one just written.
func (s *Store) UpdateVideo(ctx context.Context, id, ownerID string, patch model.VideoPatch) (*model.Video, error) {
	uid, ok := parseID(id)
	owner, ownerOK := parseID(ownerID)
	if !ok || !ownerOK {
		return nil, apperror.NotFound("video", id)
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Link != nil {
		updates["link"] = *patch.Link
	}
	if patch.Cover != nil {
		updates["cover"] = *patch.Cover
	}

	return s.writeAndRead(ctx, id, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&videoRow{}).Where("id = ? AND user_id = ?", uid, owner).Updates(updates)
	})
}

// IncrementViews adds one view in a single UPDATE. UpdateColumn skips hooks
// and leaves updated_at alone.
func (s *Store) IncrementViews(ctx context.Context, id string) (*model.Video, error) {
	uid, ok := parseID(id)
	if !ok {
		return nil, apperror.NotFound("video", id)
	}

	return s.writeAndRead(ctx, id, func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&videoRow{}).Where("id = ?", uid).UpdateColumn("views", gorm.Expr("views + ?", 1))
	})
}

// writeAndRead runs write and, if it touched a row, reloads the video with
// its owner in the same transaction.
func (s *Store) writeAndRead(ctx context.Context, id string, write func(tx *gorm.DB) *gorm.DB) (*model.Video, error) {
	var out *model.Video
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := write(tx)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("video", id)
		}

		row, err := findVideo(tx, id)
		if err != nil {
			return err
		}
		out = row.toModel()
		return nil
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("gormstore: writing video %s: %w", id, err)
	}
	return out, nil
}

func (s *Store) DeleteVideo(ctx context.Context, id string) error {
	uid, ok := parseID(id)
	if !ok {
		return apperror.NotFound("video", id)
	}

	res := s.db.WithContext(ctx).Delete(&videoRow{}, "id = ?", uid)
	if res.Error != nil {
		return fmt.Errorf("gormstore: deleting video %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("video", id)
	}
	return nil
}

func (s *Store) ListVideosByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Video, error) {
	owner, ok := parseID(userID)
	if !ok {
		return []model.Video{}, nil
	}

	var rows []videoRow
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("user_id = ?", owner).
		Order("created_at DESC, id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: listing videos of %s: %w", userID, err)
	}
	return toVideos(rows), nil
}

// SearchVideos matches term case-insensitively (ILIKE) against the title,
// the description and the owner's first and last name.
func (s *Store) SearchVideos(ctx context.Context, term string, opts repository.ListOptions) ([]model.Video, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"

	var rows []videoRow
	err := s.db.WithContext(ctx).
		Select("videos.*").
		Joins("JOIN users u ON u.id = videos.user_id").
		Where("videos.title ILIKE ? OR videos.description ILIKE ? OR u.first_name ILIKE ? OR u.last_name ILIKE ?",
			pattern, pattern, pattern, pattern).
		Preload("User").
		Order("videos.views DESC, videos.created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: searching videos: %w", err)
	}
	return toVideos(rows), nil
}

func (s *Store) MediaURLsByUser(ctx context.Context, userID string) ([]string, error) {
	owner, ok := parseID(userID)
	if !ok {
		return nil, nil
	}

	var media []struct {
		Link  string
		Cover string
	}
	err := s.db.WithContext(ctx).Model(&videoRow{}).
		Select("link", "cover").
		Where("user_id = ?", owner).
		Find(&media).Error
	if err != nil {
		return nil, fmt.Errorf("gormstore: listing media of %s: %w", userID, err)
	}

	urls := make([]string, 0, len(media)*2)
	for _, m := range media {
		urls = append(urls, m.Link, m.Cover)
	}
	return urls, nil
}

func toVideos(rows []videoRow) []model.Video {
	videos := make([]model.Video, 0, len(rows))
	for i := range rows {
		videos = append(videos, *rows[i].toModel())
	}
	return videos
}
