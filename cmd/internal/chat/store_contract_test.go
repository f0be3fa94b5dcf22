package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"layoo/cmd/internal/ids"
)

// exerciseStore checks the behavior every Store implementation must share.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice, bob := "u-"+ids.New(), "u-"+ids.New()
	now := time.Now().UTC().Truncate(time.Millisecond)
	conv := Conversation{
		ID:            ids.New(),
		Participants:  []string{alice, bob},
		PairKey:       PairKey(alice, bob),
		IsFriend:      []FriendFlag{{UserID: alice, Value: true}, {UserID: bob, Value: false}},
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.InsertConversation(ctx, conv); err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	dup := conv
	dup.ID = ids.New()
	if err := st.InsertConversation(ctx, dup); !errors.Is(err, ErrDuplicateConversation) {
		t.Fatalf("duplicate pair: expected ErrDuplicateConversation, got %v", err)
	}

	got, err := st.FindConversationByPair(ctx, PairKey(bob, alice))
	if err != nil || got.ID != conv.ID {
		t.Fatalf("find by pair: %+v %v", got, err)
	}

	updated, err := st.SetFriend(ctx, conv.ID, bob, true, now.Add(time.Second))
	if err != nil || !updated.FriendFor(bob) || !updated.FriendFor(alice) {
		t.Fatalf("set friend: %+v %v", updated.IsFriend, err)
	}
	if _, err := st.SetFriend(ctx, "missing-"+ids.New(), bob, true, now); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("set friend on missing: %v", err)
	}

	msg := Message{
		ID: ids.New(), ConversationID: conv.ID, SenderID: alice, Type: TypeText,
		Content: "hello", CreatedAt: now.Add(2 * time.Second), SeenBy: []string{alice},
	}
	at := msg.CreatedAt
	if err := st.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		if ok, err := tx.MessageExists(ctx, msg.ID); err != nil || ok {
			t.Errorf("exists before insert: %v %v", ok, err)
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		return tx.UpdateConversationSummary(ctx, conv.ID, "hello", at)
	}); err != nil {
		t.Fatalf("commit tx: %v", err)
	}

	boom := errors.New("boom")
	rolled := msg
	rolled.ID = ids.New()
	err = st.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertMessage(ctx, rolled); err != nil {
			return err
		}
		if err := tx.UpdateConversationSummary(ctx, conv.ID, "rolled back", at.Add(time.Hour)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ok, _ := st.MessageExists(ctx, rolled.ID); ok {
		t.Fatalf("rolled-back message is visible")
	}

	err = st.RunTx(ctx, func(ctx context.Context, tx Tx) error { return tx.InsertMessage(ctx, msg) })
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("duplicate insert: expected ErrDuplicateMessage, got %v", err)
	}

	c, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if c.LastMessage != "hello" || !c.LastMessageAt.Equal(at) {
		t.Fatalf("summary = %q @ %v", c.LastMessage, c.LastMessageAt)
	}

	unread, err := st.ListUnread(ctx, bob)
	if err != nil || len(unread) != 1 || unread[0].ID != msg.ID {
		t.Fatalf("unread for bob: %+v %v", unread, err)
	}
	if mine, _ := st.ListUnread(ctx, alice); len(mine) != 0 {
		t.Fatalf("sender should have nothing unread: %+v", mine)
	}
	if n, err := st.MarkSeen(ctx, conv.ID, bob); err != nil || n != 1 {
		t.Fatalf("mark seen: n=%d err=%v", n, err)
	}
	if n, _ := st.MarkSeen(ctx, conv.ID, bob); n != 0 {
		t.Fatalf("mark seen twice changed %d", n)
	}
	m, err := st.GetMessage(ctx, msg.ID)
	if err != nil || len(m.SeenBy) != 2 {
		t.Fatalf("seenBy = %v err=%v", m.SeenBy, err)
	}

	list, err := st.ListConversations(ctx, bob)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}
}

func TestInMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewInMemoryStore())
}
