package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"layoo/cmd/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type emitted struct {
	room    string
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []emitted
}

func (b *recordingBroadcaster) EmitToRoom(roomID, event string, payload any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emitted{room: roomID, event: event, payload: payload})
	return 1
}

func (b *recordingBroadcaster) snapshot() []emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]emitted(nil), b.events...)
}

func seedConversation(t *testing.T, st Store, id, a, b string) {
	t.Helper()
	err := st.InsertConversation(context.Background(), Conversation{
		ID:           id,
		Participants: []string{a, b},
		PairKey:      PairKey(a, b),
		IsFriend:     []FriendFlag{{UserID: a, Value: true}, {UserID: b, Value: false}},
		CreatedAt:    fixedNow,
		UpdatedAt:    fixedNow,
	})
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
}

func newTestService(st Store, b Broadcaster, opts ...Option) *Service {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithTxPolicy(retry.Policy{Attempts: 2, Timeout: time.Second}),
	}
	return NewService(discardLogger(), st, b, nil, append(base, opts...)...)
}

// failingTx fails the summary update after the message insert went through.
type failingTx struct{ Tx }

func (failingTx) UpdateConversationSummary(context.Context, string, string, time.Time) error {
	return io.ErrClosedPipe
}

type failingSummaryStore struct{ *InMemoryStore }

func (s failingSummaryStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.InMemoryStore.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

// flakyStore fails the first n transactions with a transient error.
type flakyStore struct {
	*InMemoryStore
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakyStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.fails > 0
	if fail {
		s.fails--
	}
	s.mu.Unlock()
	if fail {
		return retry.Transient(io.ErrUnexpectedEOF)
	}
	return s.InMemoryStore.RunTx(ctx, fn)
}

// lostAckStore commits the first transaction and then reports a transient failure, as when a
// commit acknowledgement is lost on the wire.
type lostAckStore struct {
	*InMemoryStore
	mu    sync.Mutex
	acked bool
}

func (s *lostAckStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := s.InMemoryStore.RunTx(ctx, fn); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acked {
		s.acked = true
		return retry.Transient(io.ErrUnexpectedEOF)
	}
	return nil
}
