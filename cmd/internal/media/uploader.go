// Package media moves user files from the upload directory to durable storage and extracts
// the metadata (duration, thumbnails, previews) the feeds display.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"layoo/cmd/internal/observability"
	"layoo/cmd/internal/retry"
)

// Uploader stores a local file durably and returns its public URL.
// Implementations delete the local file once it is safely stored elsewhere.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, localPath string) (string, error)

// Upload calls f.
func (f UploaderFunc) Upload(ctx context.Context, localPath string) (string, error) {
	return f(ctx, localPath)
}

// Instrumented wraps an Uploader with a bounded, retried call and upload metrics.
// Every failure it returns wraps ErrUpload.
type Instrumented struct {
	next    Uploader
	policy  retry.Policy
	metrics *observability.Metrics
}

// NewInstrumented constructs the wrapper.
func NewInstrumented(next Uploader, policy retry.Policy, m *observability.Metrics) *Instrumented {
	return &Instrumented{next: next, policy: policy, metrics: m}
}

// Upload implements Uploader.
func (u *Instrumented) Upload(ctx context.Context, localPath string) (string, error) {
	start := time.Now()

	var out string
	err := retry.Do(ctx, u.policy, func(ctx context.Context) error {
		var err error
		out, err = u.next.Upload(ctx, localPath)
		return err
	})
	u.metrics.Upload(err, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, ErrUpload) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return out, nil
}

// LocalUploader keeps files in the upload directory and serves them from BaseURL.
// It is the fallback when no object storage is configured; the local file is the durable copy.
type LocalUploader struct {
	Dir     string
	BaseURL string
}

// Upload implements Uploader.
func (u LocalUploader) Upload(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(u.Dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("local upload: %s is outside %s", localPath, u.Dir)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}

	return joinURL(u.BaseURL, filepath.ToSlash(rel)), nil
}

func joinURL(base, key string) string {
	base = strings.TrimRight(base, "/")
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/")
}

// Remove deletes local files, ignoring ones that are already gone.
func Remove(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}
