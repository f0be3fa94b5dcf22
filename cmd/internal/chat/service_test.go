package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	v1 "layoo/contracts/realtime/v1"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/media"
)

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestSendText_BroadcastsOnceAfterCommit(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	b := &recordingBroadcaster{}
	pub := &recordingPublisher{}
	svc := newTestService(st, b, WithPublisher(pub))
	ctx := context.Background()

	in := SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hello"}
	first, err := svc.SendText(ctx, in)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.Duplicate || first.MessageID != "m1" {
		t.Fatalf("unexpected result %+v", first)
	}

	second, err := svc.SendText(ctx, in)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("resend should be a duplicate")
	}

	got := b.snapshot()
	if len(got) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(got))
	}
	if got[0].room != "c1" || got[0].event != v1.TypeNewMessage {
		t.Fatalf("unexpected broadcast %+v", got[0])
	}
	p, ok := got[0].payload.(v1.NewMessagePayload)
	if !ok {
		t.Fatalf("payload type %T", got[0].payload)
	}
	if p.Type != "text" || p.Content != "hello" || len(p.SeenBy) != 1 || p.SeenBy[0] != "alice" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeMessageCreated || pub.events[0].Key != "c1" {
		t.Fatalf("unexpected published events %+v", pub.events)
	}

	c, _ := st.GetConversation(ctx, "c1")
	if c.LastMessage != "hello" || !c.LastMessageAt.Equal(fixedNow) {
		t.Fatalf("summary = %q @ %v", c.LastMessage, c.LastMessageAt)
	}
}

func TestSendText_LostCommitAckStillBroadcasts(t *testing.T) {
	t.Parallel()

	st := &lostAckStore{InMemoryStore: NewInMemoryStore()}
	seedConversation(t, st, "c1", "alice", "bob")
	b := &recordingBroadcaster{}
	svc := newTestService(st, b)
	ctx := context.Background()

	in := SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hello"}
	res, err := svc.SendText(ctx, in)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("first send answered as duplicate")
	}
	if _, err := st.GetMessage(ctx, "m1"); err != nil {
		t.Fatalf("message not stored: %v", err)
	}

	again, err := svc.SendText(ctx, in)
	if err != nil || !again.Duplicate {
		t.Fatalf("resend: dup=%v err=%v", again.Duplicate, err)
	}
	if got := b.snapshot(); len(got) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(got))
	}
}

func TestSendText_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   SendInput
	}{
		{"missing id", SendInput{ConversationID: "c1", SenderID: "a", Content: "x"}},
		{"missing conversation", SendInput{ID: "m", SenderID: "a", Content: "x"}},
		{"missing sender", SendInput{ID: "m", ConversationID: "c1", Content: "x"}},
		{"blank content", SendInput{ID: "m", ConversationID: "c1", SenderID: "a", Content: "  "}},
		{"unknown type", SendInput{ID: "m", ConversationID: "c1", SenderID: "a", Content: "x", Type: "sticker"}},
		{"too long", SendInput{ID: "m", ConversationID: "c1", SenderID: "a", Content: strings.Repeat("é", MaxContentChars+1)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := NewInMemoryStore()
			b := &recordingBroadcaster{}
			svc := newTestService(st, b)

			_, err := svc.SendText(context.Background(), tc.in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if len(b.snapshot()) != 0 {
				t.Fatalf("no broadcast expected")
			}
		})
	}
}

func TestSendText_UnknownConversationNotBroadcast(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	b := &recordingBroadcaster{}
	svc := newTestService(st, b)

	_, err := svc.SendText(context.Background(), SendInput{ID: "m1", ConversationID: "ghost", SenderID: "a", Content: "x"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if len(b.snapshot()) != 0 {
		t.Fatalf("no broadcast expected")
	}
}

func TestSendText_AbortedTransactionNotBroadcast(t *testing.T) {
	t.Parallel()

	mem := NewInMemoryStore()
	seedConversation(t, mem, "c1", "alice", "bob")
	b := &recordingBroadcaster{}
	svc := newTestService(failingSummaryStore{mem}, b)

	_, err := svc.SendText(context.Background(), SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "x"})
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}
	if len(b.snapshot()) != 0 {
		t.Fatalf("no broadcast expected")
	}
}

func TestSendText_SurvivesCanceledRequest(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	b := &recordingBroadcaster{}
	svc := newTestService(st, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.SendText(ctx, SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(b.snapshot()) != 1 {
		t.Fatalf("expected broadcast despite canceled request")
	}
}

func TestSendContact_ContentAndSummary(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	svc := newTestService(st, &recordingBroadcaster{})
	ctx := context.Background()

	if _, err := svc.SendContact(ctx, SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing payload: expected ErrInvalidInput, got %v", err)
	}

	_, err := svc.SendContact(ctx, SendInput{
		ID: "m2", ConversationID: "c1", SenderID: "alice",
		Payload: map[string]any{"contactName": "Carol", "phone": "+33 6 00"},
	})
	if err != nil {
		t.Fatalf("send contact: %v", err)
	}
	m, _ := st.GetMessage(ctx, "m2")
	if m.Content != "Contact: Carol" || m.Type != TypeContact {
		t.Fatalf("unexpected message %+v", m)
	}
	c, _ := st.GetConversation(ctx, "c1")
	if c.LastMessage != "Contact" {
		t.Fatalf("summary = %q", c.LastMessage)
	}
}

func tempUpload(t *testing.T, name, mime string) media.File {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return media.File{Path: p, Name: name, MIME: mime, Size: 4}
}

func TestSendFileVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		send     func(*Service) func(context.Context, SendInput, media.File) (SendResult, error)
		mime     string
		wantType MessageType
		urlKey   string
		summary  string
	}{
		{"audio", func(s *Service) func(context.Context, SendInput, media.File) (SendResult, error) { return s.SendAudio }, "audio/mpeg", TypeAudio, "audioUrl", "Audio"},
		{"document", func(s *Service) func(context.Context, SendInput, media.File) (SendResult, error) { return s.SendDocument }, "application/pdf", TypeDocument, "fileUrl", "Document"},
		{"image", func(s *Service) func(context.Context, SendInput, media.File) (SendResult, error) { return s.SendMedia }, "image/png", TypeImage, "mediaUrl", "Média"},
		{"video", func(s *Service) func(context.Context, SendInput, media.File) (SendResult, error) { return s.SendMedia }, "video/mp4", TypeVideo, "mediaUrl", "Média"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			st := NewInMemoryStore()
			seedConversation(t, st, "c1", "alice", "bob")
			b := &recordingBroadcaster{}
			up := media.UploaderFunc(func(_ context.Context, p string) (string, error) {
				return "https://cdn.test/" + filepath.Base(p), nil
			})
			svc := newTestService(st, b, WithUploader(up))

			f := tempUpload(t, "f.bin", tc.mime)
			res, err := tc.send(svc)(context.Background(), SendInput{
				ID: "m1", ConversationID: "c1", SenderID: "alice",
				Payload: map[string]any{"duration": 3},
			}, f)
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			wantURL := "https://cdn.test/f.bin"
			if res.URL != wantURL {
				t.Fatalf("url = %q", res.URL)
			}

			m, _ := st.GetMessage(context.Background(), "m1")
			if m.Type != tc.wantType || m.Content != wantURL {
				t.Fatalf("unexpected message %+v", m)
			}
			if m.Payload[tc.urlKey] != wantURL || m.Payload["duration"] != 3 {
				t.Fatalf("payload = %+v", m.Payload)
			}
			c, _ := st.GetConversation(context.Background(), "c1")
			if c.LastMessage != tc.summary {
				t.Fatalf("summary = %q, want %q", c.LastMessage, tc.summary)
			}
			if len(b.snapshot()) != 1 {
				t.Fatalf("expected one broadcast")
			}
		})
	}
}

func TestSendAudio_DuplicateSkipsUpload(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	var uploads atomic.Int32
	up := media.UploaderFunc(func(context.Context, string) (string, error) {
		uploads.Add(1)
		return "https://cdn.test/a.mp3", nil
	})
	b := &recordingBroadcaster{}
	svc := newTestService(st, b, WithUploader(up))
	in := SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice"}

	if _, err := svc.SendAudio(context.Background(), in, tempUpload(t, "a.mp3", "audio/mpeg")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	second := tempUpload(t, "b.mp3", "audio/mpeg")
	res, err := svc.SendAudio(context.Background(), in, second)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected duplicate")
	}
	if uploads.Load() != 1 {
		t.Fatalf("uploads = %d, want 1", uploads.Load())
	}
	if _, err := os.Stat(second.Path); !os.IsNotExist(err) {
		t.Fatalf("duplicate upload should be removed from intake, stat err = %v", err)
	}
	if len(b.snapshot()) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(b.snapshot()))
	}
}

func TestSendMedia_UploadFailureStoresNothing(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	up := media.UploaderFunc(func(context.Context, string) (string, error) {
		return "", errors.Join(media.ErrUpload, errors.New("bucket gone"))
	})
	b := &recordingBroadcaster{}
	svc := newTestService(st, b, WithUploader(up))

	f := tempUpload(t, "p.png", "image/png")
	_, err := svc.SendMedia(context.Background(), SendInput{ID: "m1", ConversationID: "c1", SenderID: "alice"}, f)
	if !errors.Is(err, media.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if ok, _ := st.MessageExists(context.Background(), "m1"); ok {
		t.Fatalf("message must not be stored")
	}
	if len(b.snapshot()) != 0 {
		t.Fatalf("no broadcast expected")
	}
	if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
		t.Fatalf("intake file should be removed")
	}
}
