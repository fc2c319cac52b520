package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sakif/media-backend/internal/apperror"
)

// compile-time check
var _ Store = (*LocalStore)(nil)

// LocalStore keeps media on the local filesystem.
//
// Layout: a file saved in folder "covers" lands at
//
//	<root>/uploads/covers/<xid>.png
//
// and is published as
//
//	<baseURL>/uploads/covers/<xid>.png
//
// The server mounts <root> at "/" for the /uploads/* prefix, so the URL path
// and the on-disk path below root are the same string.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates the uploads directory under root if needed.
// baseURL is the public origin of this server, e.g. "https://media.example.com".
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolving media root %q: %w", root, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, uploadsPrefix), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating media root: %w", err)
	}
	return &LocalStore{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Root returns the absolute media directory. The server serves files from it.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Save(_ context.Context, folder string, f File) (string, error) {
	key := objectKey(folder, f.Name)
	dst := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", folder, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("storage: creating file: %w", err)
	}

	if _, err := io.Copy(out, f.Body); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("storage: writing file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("storage: closing file: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// Owns reports whether rawURL was published by this store: it must start
// with baseURL + "/uploads/".
func (s *LocalStore) Owns(rawURL string) bool {
	return strings.HasPrefix(rawURL, s.baseURL+"/"+uploadsPrefix+"/")
}

// Delete removes the file a URL points at.
//
// The URL must carry this store's baseURL. A URL naming another host is
// rejected even when its path looks like an upload, so a reference recorded
// from client input can never reach a file on this disk. The cleaned path
// must also stay inside the media root, otherwise a crafted URL like
// "/uploads/../../etc/passwd" could reach any file the process can write.
func (s *LocalStore) Delete(_ context.Context, rawURL string) error {
	dst, err := s.pathFor(rawURL)
	if err != nil {
		return err
	}

	if err := os.Remove(dst); err != nil {
		return fmt.Errorf("storage: removing %s: %w", rawURL, err)
	}
	return nil
}

func (s *LocalStore) pathFor(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, s.baseURL+"/") {
		return "", apperror.ValidationFailed("url", "media url does not belong to this server")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperror.ValidationFailed("url", "invalid media url")
	}

	clean := path.Clean("/" + u.Path)
	if !strings.HasPrefix(clean, "/"+uploadsPrefix+"/") {
		return "", apperror.ValidationFailed("url", "media url is not under /uploads/")
	}

	dst := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	rel, err := filepath.Rel(s.root, dst)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", apperror.ValidationFailed("url", "media url escapes the media root")
	}
	return dst, nil
}
