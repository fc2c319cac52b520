package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/media-backend/internal/model"
	"github.com/sakif/media-backend/internal/repository"
)

const videoColumns = `v.id, v.title, v.description, v.link, v.cover, v.views,
	v.user_id, v.created_at, v.updated_at`

// selectVideoWithOwner joins the uploader so read paths return a populated
// Video.User in one round trip.
const selectVideoWithOwner = `SELECT ` + videoColumns + `, ` + userColumns + `
	FROM videos v JOIN users u ON u.id = v.user_id`

// CreateVideo inserts a video. views always starts at 0.
func (db *DB) CreateVideo(ctx context.Context, video *model.Video) error {
	now := time.Now().UTC()
	video.ID = uuid.NewString()
	video.Views = 0
	video.CreatedAt = now
	video.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO videos (id, title, description, link, cover, views, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		video.ID,
		video.Title,
		video.Description,
		video.Link,
		video.Cover,
		video.UserID,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting video: %w", err)
	}

	return nil
}

// FindVideoByID returns the video with its uploader.
func (db *DB) FindVideoByID(ctx context.Context, id string) (*model.Video, bool, error) {
	row := db.conn.QueryRowContext(ctx, selectVideoWithOwner+` WHERE v.id = ?`, id)

	v, err := scanVideoWithOwner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: finding video %s: %w", id, err)
	}
	return v, true, nil
}

// UpdateVideo applies a partial update guarded by ownership.
//
// COALESCE(?, col) keeps the current value when the parameter is NULL, so a
// nil patch field is passed through as NULL and leaves the column untouched.
// The "AND user_id = ?" guard makes the ownership check and the write a single
// statement: there is no window between "is this yours?" and "save it".
func (db *DB) UpdateVideo(ctx context.Context, id, ownerID string, patch model.VideoPatch) (*model.Video, error) {
	return db.writeAndRead(ctx, id,
		`UPDATE videos SET
			title       = COALESCE(?, title),
			description = COALESCE(?, description),
			link        = COALESCE(?, link),
			cover       = COALESCE(?, cover),
			updated_at  = ?
		 WHERE id = ? AND user_id = ?`,
		nullPatch(patch.Title),
		nullPatch(patch.Description),
		nullPatch(patch.Link),
		nullPatch(patch.Cover),
		time.Now().UTC(),
		id,
		ownerID,
	)
}

// IncrementViews bumps the counter atomically.
//
// RACE-FREE COUNTING:
// "views = views + 1" is evaluated by the database inside the UPDATE, so two
// concurrent calls can never both read 5 and both write 6. A read-modify-write
// in Go would lose increments under load.
//
// updated_at is left alone: a view is not an edit.
func (db *DB) IncrementViews(ctx context.Context, id string) (*model.Video, error) {
	return db.writeAndRead(ctx, id, `UPDATE videos SET views = views + 1 WHERE id = ?`, id)
}

// writeAndRead runs a single-row UPDATE and reads the row back inside one
// transaction, so the caller sees exactly the state its write produced.
// Zero affected rows means the video is missing (or not owned by the caller).
func (db *DB) writeAndRead(ctx context.Context, id, query string, args ...any) (*model.Video, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating video %s: %w", id, err)
	}
	if err := checkAffected(result, "video", id); err != nil {
		return nil, err
	}

	v, err := scanVideoWithOwner(tx.QueryRowContext(ctx, selectVideoWithOwner+` WHERE v.id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading video %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing video %s: %w", id, err)
	}
	return v, nil
}

func (db *DB) DeleteVideo(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting video %s: %w", id, err)
	}

	return checkAffected(result, "video", id)
}

// ListVideosByUser returns a page of the user's videos, newest first.
func (db *DB) ListVideosByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Video, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectVideoWithOwner+` WHERE v.user_id = ?
		 ORDER BY v.created_at DESC, v.id DESC
		 LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing videos of %s: %w", userID, err)
	}

	return collectVideos(rows)
}

// SearchVideos matches term case-insensitively against the title, the
// description and the uploader's first and last name. Most viewed first.
// Both sides are folded with strings.ToLower (unicode_lower in SQL), so
// non-ASCII letters match regardless of case.
//
// LIKE wildcards typed by the caller ("%" and "_") are escaped so a search for
// "100%" means the literal text.
func (db *DB) SearchVideos(ctx context.Context, term string, opts repository.ListOptions) ([]model.Video, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"

	rows, err := db.conn.QueryContext(ctx,
		selectVideoWithOwner+` WHERE
			   unicode_lower(v.title)       LIKE ? ESCAPE '\'
			OR unicode_lower(v.description) LIKE ? ESCAPE '\'
			OR unicode_lower(u.first_name)  LIKE ? ESCAPE '\'
			OR unicode_lower(u.last_name)   LIKE ? ESCAPE '\'
		 ORDER BY v.views DESC, v.created_at DESC
		 LIMIT ? OFFSET ?`,
		pattern, pattern, pattern, pattern, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching videos: %w", err)
	}

	return collectVideos(rows)
}

// MediaURLsByUser collects every file URL referenced by the user's videos.
// Account deletion reads these before the cascade removes the rows.
func (db *DB) MediaURLsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT link, cover FROM videos WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing media of %s: %w", userID, err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var link, cover string
		if err := rows.Scan(&link, &cover); err != nil {
			return nil, fmt.Errorf("sqlite: scanning media row: %w", err)
		}
		urls = append(urls, link, cover)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating media rows: %w", err)
	}

	return urls, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func collectVideos(rows *sql.Rows) ([]model.Video, error) {
	defer rows.Close()

	// Non-nil so an empty page encodes as [] rather than null.
	videos := []model.Video{}
	for rows.Next() {
		v, err := scanVideoWithOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning video row: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating video rows: %w", err)
	}

	return videos, nil
}

func videoTargets(v *model.Video) []any {
	return []any{
		&v.ID, &v.Title, &v.Description, &v.Link, &v.Cover, &v.Views,
		&v.UserID, &v.CreatedAt, &v.UpdatedAt,
	}
}

func scanVideoWithOwner(s scanner) (*model.Video, error) {
	var (
		v model.Video
		u model.User
		f userFields
	)
	if err := s.Scan(append(videoTargets(&v), f.targets(&u)...)...); err != nil {
		return nil, err
	}
	f.apply(&u)
	v.User = &u
	return &v, nil
}
