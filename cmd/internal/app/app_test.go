package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://layoo.example.com", want: "wss://layoo.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := Config{
		HTTPAddr:       "127.0.0.1:0",
		ChatBackend:    BackendMemory,
		UploadDir:      t.TempDir(),
		UploadMaxBytes: 1 << 20,
		PublicBaseURL:  "http://layoo.test",
	}
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestApp_Routes(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if code, body := get(path); code != http.StatusOK {
			t.Fatalf("%s: %d %s", path, code, body)
		}
	}
	if code, body := get("/api/ping"); code != http.StatusOK || !strings.Contains(body, "pong") {
		t.Fatalf("ping: %d %s", code, body)
	}

	code, body := get("/api/presence/bob")
	var st struct {
		UserID string `json:"userID"`
		Online bool   `json:"online"`
	}
	_ = json.Unmarshal([]byte(body), &st)
	if code != http.StatusOK || st.UserID != "bob" || st.Online {
		t.Fatalf("presence: %d %s", code, body)
	}

	resp, err := http.Post(srv.URL+"/api/conversations", "application/json", strings.NewReader(`{"userID":"alice","contactID":"bob"}`))
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	var conv struct {
		ConversationID string `json:"conversationID"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&conv)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || conv.ConversationID == "" {
		t.Fatalf("create conversation: %d", resp.StatusCode)
	}

	msg := `{"id":"m1","conversationID":"` + conv.ConversationID + `","senderID":"alice","content":"hello"}`
	resp, err = http.Post(srv.URL+"/api/chat/send", "application/json", strings.NewReader(msg))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
}

func TestApp_ServesLocalUploads(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	if err := os.WriteFile(filepath.Join(a.cfg.UploadDir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/a.txt", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "hi" {
		t.Fatalf("uploads: %d %q", rec.Code, rec.Body)
	}
}

func TestConfig_ChatBackend(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{}, BackendMemory},
		{Config{DatabaseURL: "postgres://x"}, BackendPostgres},
		{Config{DatabaseURL: "postgres://x", MongoURI: "mongodb://x"}, BackendMongo},
		{Config{ChatBackend: BackendMemory, MongoURI: "mongodb://x"}, BackendMemory},
		{Config{ChatBackend: "cassandra"}, BackendMemory},
	}
	for _, tc := range cases {
		if got := tc.cfg.chatBackend(); got != tc.want {
			t.Fatalf("chatBackend(%+v)=%q want %q", tc.cfg, got, tc.want)
		}
	}

	_, err := New(context.Background(), Config{ChatBackend: "cassandra", UploadDir: t.TempDir()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "cassandra") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

type countingSweeper struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (s *countingSweeper) Sweep(context.Context) (int64, error) {
	s.calls.Add(1)
	return s.n, s.err
}

func TestRunSweep(t *testing.T) {
	t.Parallel()

	ok := &countingSweeper{n: 3}
	failing := &countingSweeper{err: errors.New("down")}
	runSweep(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), map[string]sweeper{
		"actu": ok, "gift": failing, "none": nil,
	})
	if ok.calls.Load() != 1 || failing.calls.Load() != 1 {
		t.Fatalf("calls = %d, %d", ok.calls.Load(), failing.calls.Load())
	}

	if _, err := newSweeper("not a schedule", nil, ok, failing); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}
