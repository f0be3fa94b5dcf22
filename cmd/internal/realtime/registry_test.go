package realtime

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
)

func TestRegistry_Transitions(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	if !r.Register("u1", "c1") {
		t.Fatalf("first connection must report online")
	}
	if r.Register("u1", "c2") {
		t.Fatalf("second connection must not report online")
	}
	if r.Register("u1", "c2") {
		t.Fatalf("duplicate register must not report online")
	}
	if got := r.Connections(); got != 2 {
		t.Fatalf("connections=%d want 2", got)
	}

	if r.Deregister("u1", "c1") {
		t.Fatalf("removing one of two connections must not report offline")
	}
	if !r.IsOnline("u1") {
		t.Fatalf("u1 must stay online")
	}
	if !r.Deregister("u1", "c2") {
		t.Fatalf("removing last connection must report offline")
	}
	if r.IsOnline("u1") {
		t.Fatalf("u1 must be offline")
	}
	if r.Deregister("u1", "c2") {
		t.Fatalf("double deregister must be a no-op")
	}
	if r.OnlineUsers() != 0 || r.Connections() != 0 {
		t.Fatalf("registry not empty: users=%d conns=%d", r.OnlineUsers(), r.Connections())
	}
}

func TestRegistry_RejectsEmptyIDs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if r.Register("", "c1") || r.Register("u1", "") {
		t.Fatalf("empty ids must be rejected")
	}
	if r.Connections() != 0 {
		t.Fatalf("connections=%d want 0", r.Connections())
	}
}

func TestRegistry_ConnectionsForIsRestartable(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("u1", "c1")
	r.Register("u1", "c2")
	r.Register("u2", "c3")

	seq := r.ConnectionsFor("u1")

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	sort.Strings(first)
	sort.Strings(second)

	want := []string{"c1", "c2"}
	if !slices.Equal(first, want) || !slices.Equal(second, want) {
		t.Fatalf("got %v and %v, want %v twice", first, second, want)
	}

	// Early break must not hold the lock.
	for range seq {
		break
	}
	r.Register("u1", "c4")

	if n := len(slices.Collect(r.ConnectionsFor("nobody"))); n != 0 {
		t.Fatalf("unknown user yielded %d connections", n)
	}
}

// Exactly one online and one offline transition per user regardless of interleaving.
func TestRegistry_ConcurrentTransitionsCountedOnce(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	const conns = 64

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		online  int
		offline int
	)

	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Register("u1", fmt.Sprintf("c%d", i)) {
				mu.Lock()
				online++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.Deregister("u1", fmt.Sprintf("c%d", i)) {
				mu.Lock()
				offline++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if online != 1 || offline != 1 {
		t.Fatalf("online=%d offline=%d want 1/1", online, offline)
	}
}
