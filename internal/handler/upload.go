package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/storage"
)

// multipartMemory is how much of a multipart body is kept in memory; larger
// parts spill to temporary files that RemoveAll deletes.
const multipartMemory = 32 << 20

// UPLOAD VALIDATION AT THE BOUNDARY:
// A file is checked against its storage.Rule here, before any service code
// runs, so a rejected upload never touches the media store. The body size is
// capped with http.MaxBytesReader for the same reason.

// multipartForm is a parsed multipart request. Close releases every opened
// part and any temporary files.
type multipartForm struct {
	r     *http.Request
	files []multipart.File
}

// parseMultipart caps the body at maxBytes and parses it.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) (*multipartForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperror.ValidationFailed("", fmt.Sprintf("upload exceeds the %d byte limit", tooLarge.Limit))
		}
		return nil, apperror.ValidationFailed("", "invalid multipart body: "+err.Error())
	}
	return &multipartForm{r: r}, nil
}

func (m *multipartForm) Close() {
	for _, f := range m.files {
		f.Close()
	}
	if m.r.MultipartForm != nil {
		m.r.MultipartForm.RemoveAll()
	}
}

// value returns a text field, or nil when the field is absent.
func (m *multipartForm) value(name string) *string {
	values, ok := m.r.MultipartForm.Value[name]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

// file opens the file in rule.Field after checking it against rule.
// A missing optional file yields (nil, nil).
func (m *multipartForm) file(rule storage.Rule, required bool) (*storage.File, error) {
	headers := m.r.MultipartForm.File[rule.Field]
	if len(headers) == 0 {
		if required {
			return nil, apperror.ValidationFailed(rule.Field, rule.Field+" file is required")
		}
		return nil, nil
	}
	header := headers[0]

	contentType := header.Header.Get("Content-Type")
	if err := rule.Check(header.Filename, contentType); err != nil {
		return nil, err
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("handler: opening %s upload: %w", rule.Field, err)
	}
	m.files = append(m.files, f)

	return &storage.File{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        f,
	}, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// DATES:
// Birthdays arrive either as a full RFC 3339 timestamp or as a bare
// "2006-01-02" date, from JSON bodies and from multipart fields alike.

const dateOnly = "2006-01-02"

func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, dateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperror.ValidationFailed(field, field+" must be a date like 2006-01-02")
}

// jsonDate is a JSON string holding a date in either accepted layout.
type jsonDate struct {
	time.Time
}

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := parseDate("birthday", raw)
	if err != nil {
		return err
	}
	d.Time = *t
	return nil
}

// ptr converts an optional jsonDate into the *time.Time the services take.
func (d *jsonDate) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
