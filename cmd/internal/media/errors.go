package media

import (
	"errors"
	"net/http"
)

var (
	// ErrUpload is returned when object storage rejects or fails an upload.
	ErrUpload = errors.New("media: upload failed")

	// ErrUnsupportedType is returned when a file's MIME type is not on the allow-list.
	ErrUnsupportedType = errors.New("media: file type not allowed")

	// ErrTooLarge is returned when a file exceeds the intake limit.
	ErrTooLarge = errors.New("media: file too large")

	// ErrMissingFile is returned when a required multipart file part is absent.
	ErrMissingFile = errors.New("media: missing file")

	// ErrBadForm is returned when the request body is not a readable multipart form.
	ErrBadForm = errors.New("media: malformed multipart form")
)

// HTTPStatus maps intake and upload errors to a response status and error code.
// ok is false for errors this package does not own.
func HTTPStatus(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large", true
	case errors.Is(err, ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "unsupported_media_type", true
	case errors.Is(err, ErrMissingFile):
		return http.StatusBadRequest, "missing_file", true
	case errors.Is(err, ErrBadForm):
		return http.StatusBadRequest, "invalid_form", true
	case errors.Is(err, ErrUpload):
		return http.StatusInternalServerError, "upload_failed", true
	}
	return 0, "", false
}
