package model

import "time"

// Video is an uploaded clip together with its cover image.
//
// Link and Cover are public URLs produced by the media store. UserID is set
// once at creation and never changes; only that user may edit or delete the
// video. Views only ever goes up.
//
// User is populated on read paths (get, list, search) so clients can show the
// uploader without a second request. It is nil on write responses.
type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Cover       string    `json:"cover"`
	Views       int64     `json:"views"`
	UserID      string    `json:"userId"`
	User        *User     `json:"user,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VideoPatch carries the creator-editable fields. nil fields are left unchanged.
type VideoPatch struct {
	Title       *string
	Description *string
	Link        *string
	Cover       *string
}

// IsEmpty reports whether the patch would change nothing.
func (p VideoPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Link == nil && p.Cover == nil
}
