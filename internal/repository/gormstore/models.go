package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sakif/media-backend/internal/model"
)

// userRow is the users table. Optional identity columns are pointers so that
// an absent username or google id is stored as NULL and stays out of the
// unique indexes.
type userRow struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Username  *string         `gorm:"size:50;uniqueIndex"`
	Email     *string         `gorm:"size:255"`
	Password  string          `gorm:"not null;default:''"`
	GoogleID  *string         `gorm:"size:255;uniqueIndex"`
	FirstName string          `gorm:"size:100;not null"`
	LastName  string          `gorm:"size:100;not null;default:''"`
	Birthday  *datatypes.Date
	Avatar    string          `gorm:"not null;default:''"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "users" }

func (u *userRow) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// videoRow is the videos table. User is loaded with Preload on read paths.
type videoRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title       string    `gorm:"size:200;not null"`
	Description string    `gorm:"type:text;not null;default:''"`
	Link        string    `gorm:"not null"`
	Cover       string    `gorm:"not null"`
	Views       int64     `gorm:"not null;default:0;index"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_videos_user_created,priority:1"`
	User        *userRow  `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `gorm:"index:idx_videos_user_created,priority:2"`
	UpdatedAt   time.Time
}

func (videoRow) TableName() string { return "videos" }

func (v *videoRow) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// CONVERSIONS:
// The domain model uses "" for an absent optional string; the rows use NULL.

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func fromUser(u *model.User) userRow {
	row := userRow{
		Username:  optional(u.Username),
		Email:     optional(u.Email),
		Password:  u.PasswordHash,
		GoogleID:  optional(u.GoogleID),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
	}
	if id, ok := parseID(u.ID); ok {
		row.ID = id
	}
	if u.Birthday != nil {
		d := datatypes.Date(u.Birthday.UTC())
		row.Birthday = &d
	}
	return row
}

func (r *userRow) toModel() *model.User {
	u := &model.User{
		ID:           r.ID.String(),
		Username:     deref(r.Username),
		Email:        deref(r.Email),
		PasswordHash: r.Password,
		GoogleID:     deref(r.GoogleID),
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Avatar:       r.Avatar,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.Birthday != nil {
		t := time.Time(*r.Birthday).UTC()
		u.Birthday = &t
	}
	return u
}

func (r *videoRow) toModel() *model.Video {
	v := &model.Video{
		ID:          r.ID.String(),
		Title:       r.Title,
		Description: r.Description,
		Link:        r.Link,
		Cover:       r.Cover,
		Views:       r.Views,
		UserID:      r.UserID.String(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.User != nil {
		v.User = r.User.toModel()
	}
	return v
}
