package post

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"layoo/cmd/internal/media"
	"layoo/cmd/internal/user"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubContacts map[string][]string

func (c stubContacts) ContactIDs(_ context.Context, userID string) ([]string, error) {
	ids, ok := c[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	return ids, nil
}

type stubDirectory map[string]user.Profile

func (d stubDirectory) Profiles(_ context.Context, ids []string) (map[string]user.Profile, error) {
	out := make(map[string]user.Profile)
	for _, id := range ids {
		if p, ok := d[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func cdn() media.Uploader {
	return media.UploaderFunc(func(_ context.Context, p string) (string, error) {
		return "https://cdn.test/" + filepath.Base(p), nil
	})
}

func newTestService(up media.Uploader) *Service {
	svc := NewService(discardLogger(), Deps{
		Store:     NewInMemoryStore(),
		Uploader:  up,
		Contacts:  stubContacts{"bob": {"alice"}},
		Directory: stubDirectory{"alice": {ID: "alice", Name: "Alice", ProfileImage: "https://cdn.test/alice.png"}},
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func tempFiles(t *testing.T, names ...string) []media.File {
	t.Helper()
	dir := t.TempDir()
	out := make([]media.File, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
		out = append(out, media.File{Path: p, Name: n, OriginalName: n, MIME: "image/png"})
	}
	return out
}

func TestService_CreateKeepsFileOrder(t *testing.T) {
	t.Parallel()

	svc := newTestService(cdn())
	p, err := svc.Create(context.Background(), CreateInput{
		Owner:        "alice",
		Type:         TypeMultiImage,
		Title:        "weekend",
		Visibility:   "public",
		ContentFlags: map[string]bool{"sensitive": false},
		Name:         "ignored",
		Files:        tempFiles(t, "a.png", "b.png", "c.png", "d.png"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"https://cdn.test/a.png", "https://cdn.test/b.png", "https://cdn.test/c.png", "https://cdn.test/d.png"}
	if strings.Join(p.MediaURLs, ",") != strings.Join(want, ",") {
		t.Fatalf("mediaUrls = %v", p.MediaURLs)
	}
	if p.Name != "Alice" || p.ProfileImage == "" || !p.Uploaded || !p.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected post %+v", p)
	}

	feed, err := svc.Received(context.Background(), "bob")
	if err != nil || len(feed) != 1 || feed[0].ID != p.ID {
		t.Fatalf("feed = %+v, %v", feed, err)
	}
	if _, err := svc.Received(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
}

func TestService_CreateValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(cdn())
	base := CreateInput{Owner: "alice", Type: TypeText, Title: "t", Visibility: "public"}
	cases := map[string]func(*CreateInput){
		"no owner":      func(in *CreateInput) { in.Owner = "" },
		"bad type":      func(in *CreateInput) { in.Type = "poll" },
		"no title":      func(in *CreateInput) { in.Title = " " },
		"no visibility": func(in *CreateInput) { in.Visibility = "" },
		"too many files": func(in *CreateInput) {
			in.Files = tempFiles(t, "1.png", "2.png", "3.png", "4.png", "5.png", "6.png")
		},
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: err = %v", name, err)
		}
		for _, f := range in.Files {
			if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
				t.Fatalf("%s: %s kept", name, f.Name)
			}
		}
	}
}

func TestService_UploadFailureStoresNothing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc := newTestService(media.UploaderFunc(func(_ context.Context, p string) (string, error) {
		calls.Add(1)
		if filepath.Base(p) == "b.png" {
			return "", errors.New("bucket down")
		}
		return "https://cdn.test/" + filepath.Base(p), nil
	}))
	files := tempFiles(t, "a.png", "b.png")
	_, err := svc.Create(context.Background(), CreateInput{Owner: "alice", Type: TypeImage, Title: "t", Visibility: "public", Files: files})
	if !errors.Is(err, media.ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	if _, err := os.Stat(files[1].Path); !os.IsNotExist(err) {
		t.Fatalf("failed file kept (err=%v)", err)
	}
	if feed, _ := svc.Received(context.Background(), "bob"); len(feed) != 0 {
		t.Fatalf("post stored after upload failure: %+v", feed)
	}
	if calls.Load() == 0 {
		t.Fatal("no upload attempted")
	}
}

func TestHandler_CreateAndReceived(t *testing.T) {
	t.Parallel()

	intake, err := media.NewIntake(t.TempDir(), 1<<20, nil)
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	mux := http.NewServeMux()
	NewHandler(discardLogger(), newTestService(cdn()), intake).Register(mux)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"userID": "alice", "type": "image", "title": "sunset", "contentText": "golden hour",
		"visibility": "public", "appearOnSearch": "true", "contentFlags": `{"nsfw":false}`,
	} {
		_ = mw.WriteField(k, v)
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="sun.png"`)
	hdr.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(hdr)
	_, _ = part.Write([]byte("\x89PNG"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/post", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["userID"] != "alice" || out["contentText"] != "golden hour" || out["appearOnSearch"] != true {
		t.Fatalf("unexpected response %v", out)
	}
	if urls, _ := out["mediaUrls"].([]any); len(urls) != 1 {
		t.Fatalf("mediaUrls = %v", out["mediaUrls"])
	}
	if _, ok := out["uploaded"]; ok {
		t.Fatalf("uploaded leaked into response")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/post/received/bob", nil))
	var feed []Post
	_ = json.Unmarshal(rec.Body.Bytes(), &feed)
	if rec.Code != http.StatusOK || len(feed) != 1 || feed[0].Title != "sunset" {
		t.Fatalf("received = %d %s", rec.Code, rec.Body)
	}
}
