// Package storage persists uploaded media files and hands back their public URLs.
//
// Two backends implement Store:
//   - LocalStore writes under a directory on disk that the HTTP server also
//     serves at /uploads/*.
//   - S3Store puts objects in an S3-compatible bucket (AWS, Cloudflare R2, MinIO).
//
// URLS ARE THE ONLY HANDLE:
// The database only ever records the public URL returned by Save. Delete takes
// that same URL and maps it back to the file or object it came from, so rows
// never need to know which backend produced them.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/xid"
)

// Folders group uploads by purpose.
const (
	FolderAvatars = "avatars"
	FolderVideos  = "videos"
	FolderCovers  = "covers"
)

// uploadsPrefix is the first path segment of every stored object.
const uploadsPrefix = "uploads"

// File is one uploaded file as received from the client.
// Body should be an io.ReadSeeker (multipart.File is) so S3 can sign it.
type File struct {
	Name        string // original client file name, used for its extension
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store saves and removes media files.
type Store interface {
	// Save stores f under folder with a fresh random name and returns its public URL.
	Save(ctx context.Context, folder string, f File) (string, error)
	// Delete removes the file behind a URL previously returned by Save.
	// URLs the store did not produce are rejected with a validation error.
	Delete(ctx context.Context, url string) error
	// Owns reports whether url points into this store. Only URLs returned
	// by Save should ever be recorded for a user or video.
	Owns(url string) bool
}

// objectKey builds "uploads/<folder>/<xid><ext>".
//
// WHY XID?
// xid values are 20 URL-safe characters, globally unique without coordination
// and roughly time-sortable, which keeps a directory listing in upload order.
// The client's file name is discarded except for its extension.
func objectKey(folder, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return path.Join(uploadsPrefix, folder, xid.New().String()+ext)
}
