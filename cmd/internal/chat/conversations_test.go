package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCreateOrGet_NewThenExisting(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	pub := &recordingPublisher{}
	svc := newTestService(st, nil, WithPublisher(pub))
	ctx := context.Background()

	first, err := svc.CreateOrGet(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !first.Created || first.ContactID != "bob" {
		t.Fatalf("unexpected result %+v", first)
	}
	c := first.Conversation
	if !c.FriendFor("alice") || c.FriendFor("bob") {
		t.Fatalf("friend flags = %+v", c.IsFriend)
	}
	if c.PairKey != PairKey("bob", "alice") {
		t.Fatalf("pair key = %q", c.PairKey)
	}

	second, err := svc.CreateOrGet(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Created || second.Conversation.ID != c.ID || second.ContactID != "alice" {
		t.Fatalf("unexpected result %+v", second)
	}
	if !second.Conversation.FriendFor("bob") || !second.Conversation.FriendFor("alice") {
		t.Fatalf("bob's flag should now be set: %+v", second.Conversation.IsFriend)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.events))
	}
}

func TestCreateOrGet_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(NewInMemoryStore(), nil)
	for _, pair := range [][2]string{{"", "bob"}, {"alice", " "}, {"alice", "alice"}} {
		if _, err := svc.CreateOrGet(context.Background(), pair[0], pair[1]); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%v: expected ErrInvalidInput, got %v", pair, err)
		}
	}
}

func TestCreateOrGet_ConcurrentSinglePair(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	svc := newTestService(st, nil)

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			res, err := svc.CreateOrGet(context.Background(), a, b)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids[i] = res.Conversation.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("conversation ids diverged: %v", ids)
		}
	}
	convs, _ := st.ListConversations(context.Background(), "alice")
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
}

func TestUnreadAndMarkSeen(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	seedConversation(t, st, "c2", "carol", "bob")
	now := fixedNow
	svc := newTestService(st, &recordingBroadcaster{}, WithClock(func() time.Time { now = now.Add(time.Second); return now }))
	ctx := context.Background()

	send := func(id, conv, from string) {
		t.Helper()
		if _, err := svc.SendText(ctx, SendInput{ID: id, ConversationID: conv, SenderID: from, Content: id}); err != nil {
			t.Fatalf("send %s: %v", id, err)
		}
	}
	send("m1", "c1", "alice")
	send("m2", "c1", "alice")
	send("m3", "c1", "bob")
	send("m4", "c2", "carol")

	unread, err := svc.Unread(ctx, "bob")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if got := unread["c1"]; len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m1" {
		t.Fatalf("c1 unread = %+v", got)
	}
	if got := unread["c2"]; len(got) != 1 || got[0].ID != "m4" {
		t.Fatalf("c2 unread = %+v", got)
	}

	n, err := svc.MarkSeen(ctx, "c1", "bob")
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if n != 2 {
		t.Fatalf("updated = %d, want 2 (bob already saw his own m3)", n)
	}
	if n, _ := svc.MarkSeen(ctx, "c1", "bob"); n != 0 {
		t.Fatalf("second mark seen updated %d", n)
	}

	unread, _ = svc.Unread(ctx, "bob")
	if _, ok := unread["c1"]; ok {
		t.Fatalf("c1 should have no unread messages left")
	}

	sums, err := svc.ListSummaries(ctx, "bob")
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(sums) != 2 || sums[0].ConversationID != "c2" || sums[0].ContactID != "carol" || sums[0].LastMessage != "m4" {
		t.Fatalf("summaries = %+v", sums)
	}
}

func TestIsParticipant(t *testing.T) {
	t.Parallel()

	st := NewInMemoryStore()
	seedConversation(t, st, "c1", "alice", "bob")
	svc := newTestService(st, nil)
	ctx := context.Background()

	if ok, err := svc.IsParticipant(ctx, "alice", "c1"); err != nil || !ok {
		t.Fatalf("alice: ok=%v err=%v", ok, err)
	}
	if ok, _ := svc.IsParticipant(ctx, "mallory", "c1"); ok {
		t.Fatalf("mallory is not a participant")
	}
	if ok, err := svc.IsParticipant(ctx, "alice", "ghost"); err != nil || ok {
		t.Fatalf("ghost: ok=%v err=%v", ok, err)
	}
}
