package realtime

import (
	"errors"
	"slices"
	"testing"
)

func TestRooms_AttachJoinsPersonalRoom(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	c := NewClient("u1", "c1", 8)
	r.Attach(c)

	if got := r.Members("u1"); !slices.Equal(got, []string{"c1"}) {
		t.Fatalf("personal room members=%v", got)
	}
	if got := r.JoinedRooms("c1"); !slices.Equal(got, []string{"u1"}) {
		t.Fatalf("joined rooms=%v", got)
	}
}

func TestRooms_JoinLeaveDetach(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	a := NewClient("u1", "c1", 8)
	b := NewClient("u2", "c2", 8)
	r.Attach(a)
	r.Attach(b)

	if err := r.Join("c1", "conv"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := r.Join("c2", "conv"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := r.Join("c1", "conv"); err != nil {
		t.Fatalf("rejoin must be idempotent: %v", err)
	}
	if got := r.Members("conv"); !slices.Equal(got, []string{"c1", "c2"}) {
		t.Fatalf("members=%v", got)
	}

	r.Leave("c1", "conv")
	r.Leave("c1", "conv")
	r.Leave("c1", "never-joined")
	if got := r.Members("conv"); !slices.Equal(got, []string{"c2"}) {
		t.Fatalf("members after leave=%v", got)
	}

	if !r.Detach("c2") {
		t.Fatalf("detach must report attached connection")
	}
	if r.Detach("c2") {
		t.Fatalf("second detach must report false")
	}
	if r.Room("conv") != nil {
		t.Fatalf("empty room must be dropped")
	}
	if r.Room("u2") != nil {
		t.Fatalf("personal room of detached connection must be dropped")
	}
	if len(r.Clients()) != 1 {
		t.Fatalf("clients=%d want 1", len(r.Clients()))
	}
}

func TestRooms_JoinUnknownConnection(t *testing.T) {
	t.Parallel()

	r := NewRooms()
	if err := r.Join("ghost", "conv"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("err=%v want ErrUnknownConnection", err)
	}
	if err := r.Join("ghost", ""); err == nil {
		t.Fatalf("empty room id must fail")
	}
}

func TestRoom_BroadcastNeverBlocks(t *testing.T) {
	t.Parallel()

	room := newRoom("conv")
	slow := NewClient("u1", "slow", 1)
	fast := NewClient("u2", "fast", 8)
	closed := NewClient("u3", "closed", 8)
	closed.Close()

	room.Join(slow)
	room.Join(fast)
	room.Join(closed)

	env := newEnvelope("new_message", nil, fixedNow())

	d, dr := room.Broadcast(env, "")
	if d != 2 || dr != 1 {
		t.Fatalf("first broadcast delivered=%d dropped=%d want 2/1", d, dr)
	}
	d, dr = room.Broadcast(env, "")
	if d != 1 || dr != 2 {
		t.Fatalf("second broadcast delivered=%d dropped=%d want 1/2", d, dr)
	}
	d, _ = room.Broadcast(env, "fast")
	if d != 0 {
		t.Fatalf("except broadcast delivered=%d want 0", d)
	}
}
