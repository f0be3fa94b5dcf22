package media

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxFileBytes is the per-file upload limit.
const DefaultMaxFileBytes = 50 << 20

// DefaultAllowedTypes is the MIME allow-list for uploaded files.
var DefaultAllowedTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp",
	"video/mp4", "video/mpeg", "video/quicktime",
	"audio/mpeg", "audio/mp3",
	"application/pdf",
}

// File is an accepted upload sitting in the intake directory.
type File struct {
	Field        string
	Path         string
	Name         string
	OriginalName string
	MIME         string
	Size         int64
}

// Kind returns the top-level media kind: image, video, audio or the full MIME type otherwise.
func (f File) Kind() string {
	top, _, _ := strings.Cut(f.MIME, "/")
	switch top {
	case "image", "video", "audio":
		return top
	}
	return f.MIME
}

// Intake validates multipart files and writes them into Dir under unique names.
type Intake struct {
	Dir      string
	MaxBytes int64
	allowed  map[string]struct{}
	now      func() time.Time
}

// NewIntake constructs an Intake. An empty allow-list means DefaultAllowedTypes.
func NewIntake(dir string, maxBytes int64, allowed []string) (*Intake, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create upload dir: %w", err)
	}

	in := &Intake{
		Dir:      dir,
		MaxBytes: maxBytes,
		allowed:  make(map[string]struct{}, len(allowed)),
		now:      time.Now,
	}
	for _, t := range allowed {
		in.allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return in, nil
}

// ParseForm parses a multipart request carrying at most maxFiles files.
func (in *Intake) ParseForm(w http.ResponseWriter, r *http.Request, maxFiles int) error {
	if maxFiles < 1 {
		maxFiles = 1
	}
	r.Body = http.MaxBytesReader(w, r.Body, in.MaxBytes*int64(maxFiles)+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return ErrTooLarge
		}
		return fmt.Errorf("%w: %w", ErrBadForm, err)
	}
	return nil
}

// SaveField saves the first file of a form field. ParseForm must have run.
func (in *Intake) SaveField(r *http.Request, field string) (File, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return File{}, fmt.Errorf("%w: %s", ErrMissingFile, field)
	}
	return in.Save(field, r.MultipartForm.File[field][0])
}

// SaveAll saves every file of a form field.
func (in *Intake) SaveAll(r *http.Request, field string) ([]File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := in.Save(field, fh)
		if err != nil {
			Remove(paths(out)...)
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Save validates and stores one file.
func (in *Intake) Save(field string, fh *multipart.FileHeader) (File, error) {
	if fh == nil {
		return File{}, ErrMissingFile
	}
	if fh.Size > in.MaxBytes {
		return File{}, fmt.Errorf("%w: %s is %d bytes, max %d", ErrTooLarge, fh.Filename, fh.Size, in.MaxBytes)
	}

	src, err := fh.Open()
	if err != nil {
		return File{}, err
	}
	defer func() { _ = src.Close() }()

	ct, err := in.contentType(fh, src)
	if err != nil {
		return File{}, err
	}
	if _, ok := in.allowed[ct]; !ok {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}

	name := in.fileName(fh.Filename)
	dstPath := filepath.Join(in.Dir, name)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return File{}, err
	}

	n, err := io.Copy(dst, io.LimitReader(src, in.MaxBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > in.MaxBytes {
		err = fmt.Errorf("%w: %s", ErrTooLarge, fh.Filename)
	}
	if err != nil {
		Remove(dstPath)
		return File{}, err
	}

	return File{
		Field:        field,
		Path:         dstPath,
		Name:         name,
		OriginalName: fh.Filename,
		MIME:         ct,
		Size:         n,
	}, nil
}

func (in *Intake) contentType(fh *multipart.FileHeader, src multipart.File) (string, error) {
	declared := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		mt, _, err := mime.ParseMediaType(declared)
		if err == nil {
			return strings.ToLower(mt), nil
		}
	}

	var head [512]byte
	n, err := io.ReadFull(src, head[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return strings.ToLower(mt), nil
}

// fileName builds "<unix-millis>-<uuid>-<original>" with whitespace replaced by underscores.
func (in *Intake) fileName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.Join(strings.Fields(base), "_")
	if base == "" {
		base = "file"
	}
	return strconv.FormatInt(in.now().UnixMilli(), 10) + "-" + uuid.NewString() + "-" + base
}

func paths(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

// Paths returns the local paths of files.
func Paths(files ...File) []string { return paths(files) }
