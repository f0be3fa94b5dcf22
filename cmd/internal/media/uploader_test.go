package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"layoo/cmd/internal/observability"
	"layoo/cmd/internal/retry"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumented_RetriesTransientOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	flaky := UploaderFunc(func(ctx context.Context, path string) (string, error) {
		if calls.Add(1) == 1 {
			return "", retry.Transient(errors.New("connection reset"))
		}
		return "https://cdn.example/" + filepath.Base(path), nil
	})

	m := observability.NewMetrics()
	u := NewInstrumented(flaky, retry.Policy{Attempts: 2, Timeout: time.Second}, m)

	got, err := u.Upload(context.Background(), "/tmp/a.jpg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got != "https://cdn.example/a.jpg" || calls.Load() != 2 {
		t.Fatalf("url=%q calls=%d", got, calls.Load())
	}
	if n := testutil.CollectAndCount(m.UploadDuration); n != 1 {
		t.Fatalf("upload histogram series=%d", n)
	}
}

func TestInstrumented_WrapsFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	broken := UploaderFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", errors.New("access denied")
	})

	u := NewInstrumented(broken, retry.Once(time.Second), nil)
	_, err := u.Upload(context.Background(), "/tmp/a.jpg")
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err=%v want ErrUpload", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent failure retried: calls=%d", calls.Load())
	}
}

func TestInstrumented_StalledAttemptTimesOut(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	stall := UploaderFunc(func(ctx context.Context, _ string) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	})

	u := NewInstrumented(stall, retry.Policy{Attempts: 2, Timeout: 20 * time.Millisecond}, nil)
	start := time.Now()
	_, err := u.Upload(context.Background(), "/tmp/a.jpg")
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err=%v want ErrUpload", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want 2", calls.Load())
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("upload not bounded")
	}
}

func TestLocalUploader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "17-abc-photo 1.jpg")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := LocalUploader{Dir: dir, BaseURL: "http://localhost:8080/uploads/"}
	got, err := u.Upload(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://localhost:8080/uploads/17-abc-photo%201.jpg" {
		t.Fatalf("url=%q", got)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("local uploader must keep the durable copy: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "x.jpg")
	_ = os.WriteFile(outside, []byte("x"), 0o644)
	if _, err := u.Upload(context.Background(), outside); err == nil || !strings.Contains(err.Error(), "outside") {
		t.Fatalf("err=%v want outside-dir rejection", err)
	}
}
