package gift

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "layoo/contracts/realtime/v1"

	"layoo/cmd/internal/media"
	"layoo/cmd/internal/user"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type notice struct {
	userID  string
	event   string
	payload any
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) EmitToUser(userID, event string, payload any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{userID, event, payload})
	return 1
}

func (n *recordingNotifier) snapshot() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.notices)
}

type stubContacts map[string][]string

func (c stubContacts) ContactIDs(_ context.Context, userID string) ([]string, error) {
	ids, ok := c[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	return ids, nil
}

func newTestService(up media.Uploader, n Notifier) *Service {
	svc := NewService(discardLogger(), Deps{
		Store:    NewInMemoryStore(),
		Uploader: up,
		Contacts: stubContacts{"bob": {"alice"}, "carol": {}},
		Notifier: n,
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestService_CreateTextAndFeed(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	svc := newTestService(nil, n)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateInput{Owner: "alice", Recipients: []string{"bob"}, Type: TypeText, Content: "bonjour", Caption: "hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Content != "bonjour" || !g.ExpiresAt.Equal(fixedNow.Add(Lifetime)) || !g.IsActive {
		t.Fatalf("unexpected gift %+v", g)
	}
	if got := n.snapshot(); len(got) != 1 || got[0].userID != "bob" || got[0].event != v1.TypeNewGift {
		t.Fatalf("notices = %+v", got)
	}

	feed, err := svc.Received(ctx, "bob")
	if err != nil || len(feed) != 1 || feed[0].ID != g.ID {
		t.Fatalf("feed = %+v, %v", feed, err)
	}
	if feed, err := svc.Received(ctx, "carol"); err != nil || len(feed) != 0 {
		t.Fatalf("carol feed = %+v, %v", feed, err)
	}
	if _, err := svc.Received(ctx, "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}

	svc.now = func() time.Time { return fixedNow.Add(Lifetime) }
	if feed, _ := svc.Received(ctx, "bob"); len(feed) != 0 {
		t.Fatalf("expired gift still visible: %+v", feed)
	}
	if n, err := svc.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
}

func TestService_CreateValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(nil, nil)
	cases := []struct {
		name string
		in   CreateInput
	}{
		{"no owner", CreateInput{Type: TypeText, Content: "x"}},
		{"bad type", CreateInput{Owner: "alice", Type: "audio", Content: "x"}},
		{"no content", CreateInput{Owner: "alice", Type: TypeText}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: err = %v", tc.name, err)
		}
	}
}

func TestService_CreateWithFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := media.File{Path: path, Name: "pic.png", MIME: "image/png"}

	failing := newTestService(media.UploaderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("bucket down")
	}), nil)
	if _, err := failing.Create(context.Background(), CreateInput{Owner: "alice", Type: TypeImage, File: &f}); !errors.Is(err, media.ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file kept after failed upload (err=%v)", err)
	}

	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(media.UploaderFunc(func(_ context.Context, p string) (string, error) {
		return "https://cdn.test/" + filepath.Base(p), nil
	}), nil)
	g, err := svc.Create(context.Background(), CreateInput{Owner: "alice", Type: TypeImage, Content: "ignored", File: &f})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Content != "https://cdn.test/pic.png" {
		t.Fatalf("content = %q", g.Content)
	}
}

func TestService_ReactionsAndViews(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	svc := newTestService(nil, n)
	ctx := context.Background()
	g, err := svc.Create(ctx, CreateInput{Owner: "alice", Type: TypeText, Content: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for range 2 {
		if err := svc.React(ctx, g.ID, "bob", Like); err != nil {
			t.Fatalf("like: %v", err)
		}
	}
	if err := svc.React(ctx, g.ID, "carol", Dislike); err != nil {
		t.Fatalf("dislike: %v", err)
	}
	if err := svc.React(ctx, "missing", "bob", Like); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	for range 2 {
		viewers, err := svc.MarkRead(ctx, g.ID, "bob")
		if err != nil || !slices.Equal(viewers, []string{"bob"}) {
			t.Fatalf("read = %v, %v", viewers, err)
		}
	}

	got := n.snapshot()
	want := []string{v1.TypeGiftLiked, v1.TypeGiftLiked, v1.TypeGiftDisliked, v1.TypeGiftViewed}
	if len(got) != len(want) {
		t.Fatalf("notices = %+v", got)
	}
	for i, w := range want {
		if got[i].userID != "alice" || got[i].event != w {
			t.Fatalf("notice %d = %+v, want %s", i, got[i], w)
		}
	}
	if p, ok := got[2].payload.(v1.GiftReactionPayload); !ok || p.GiftID != g.ID || p.UserID != "carol" {
		t.Fatalf("dislike payload = %#v", got[2].payload)
	}

	st := svc.store.(*InMemoryStore)
	st.mu.Lock()
	stored := st.gifts[g.ID]
	st.mu.Unlock()
	if len(stored.LikedBy) != 1 || len(stored.DislikeBy) != 1 || stored.ViewersCount != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestHandler_Routes(t *testing.T) {
	t.Parallel()

	intake, err := media.NewIntake(t.TempDir(), 1<<20, nil)
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	svc := newTestService(media.UploaderFunc(func(_ context.Context, p string) (string, error) {
		return "https://cdn.test/" + filepath.Base(p), nil
	}), nil)
	mux := http.NewServeMux()
	NewHandler(discardLogger(), svc, intake).Register(mux)

	body, ct := giftForm(t, map[string]string{"ownerId": "alice", "type": "text", "content": "hey", "recipientIds": `["bob"]`})
	req := httptest.NewRequest(http.MethodPost, "/api/gift", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	var g Gift
	_ = json.Unmarshal(rec.Body.Bytes(), &g)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}
	if rec := post("/api/gift/"+g.ID+"/like", `{"userId":"bob"}`); rec.Code != http.StatusOK {
		t.Fatalf("like status = %d", rec.Code)
	}
	if rec := post("/api/gift/nope/dislike", `{"userId":"bob"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("dislike missing status = %d", rec.Code)
	}
	rec = post("/api/gift/"+g.ID+"/read", `{"userId":"bob"}`)
	var read struct {
		ViewedBy []string `json:"viewedBy"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &read)
	if rec.Code != http.StatusOK || !slices.Equal(read.ViewedBy, []string{"bob"}) {
		t.Fatalf("read = %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gift/received/bob", nil))
	var feed []Gift
	_ = json.Unmarshal(rec.Body.Bytes(), &feed)
	if rec.Code != http.StatusOK || len(feed) != 1 {
		t.Fatalf("received = %d %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gift/received/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", rec.Code)
	}

	body, ct = giftForm(t, map[string]string{"ownerId": "alice", "type": "text"})
	req = httptest.NewRequest(http.MethodPost, "/api/gift", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty gift status = %d", rec.Code)
	}
}

func giftForm(t *testing.T, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	_ = mw.Close()
	return strings.NewReader(buf.String()), mw.FormDataContentType()
}
