package storage

import (
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sakif/media-backend/internal/apperror"
)

// Rule restricts what may be uploaded into one form field. A file passes only
// when both its declared content type and its file extension are allowed.
type Rule struct {
	Field      string
	MIMETypes  []string
	Extensions []string
}

// Upload rules per field. Replacement uploads accept a slightly wider set of
// formats than the initial upload.
var (
	VideoRule = Rule{
		Field:      "video",
		MIMETypes:  []string{"video/mp4", "video/quicktime"},
		Extensions: []string{".mp4", ".mov"},
	}
	VideoReplaceRule = Rule{
		Field:      "video",
		MIMETypes:  []string{"video/mp4", "video/quicktime", "video/x-msvideo"},
		Extensions: []string{".mp4", ".mov", ".avi"},
	}
	CoverRule = Rule{
		Field:      "cover",
		MIMETypes:  []string{"image/jpeg", "image/png"},
		Extensions: []string{".jpg", ".jpeg", ".png"},
	}
	CoverReplaceRule = Rule{
		Field:      "cover",
		MIMETypes:  []string{"image/jpeg", "image/png", "image/webp"},
		Extensions: []string{".jpg", ".jpeg", ".png", ".webp"},
	}
	AvatarRule = Rule{
		Field:      "avatar",
		MIMETypes:  []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		Extensions: []string{".jpg", ".jpeg", ".png", ".webp", ".gif"},
	}
)

// Check validates a file's name and Content-Type header against the rule.
func (r Rule) Check(name, contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r.violation()
	}
	ext := strings.ToLower(filepath.Ext(name))

	if !slices.Contains(r.MIMETypes, strings.ToLower(mediaType)) || !slices.Contains(r.Extensions, ext) {
		return r.violation()
	}
	return nil
}

func (r Rule) violation() error {
	return apperror.ValidationFailed(r.Field, fmt.Sprintf(
		"invalid file type for %s. Allowed types: %s (Extensions: %s)",
		r.Field, strings.Join(r.MIMETypes, ", "), strings.Join(r.Extensions, ", "),
	))
}
