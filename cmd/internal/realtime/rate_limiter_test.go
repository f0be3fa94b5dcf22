package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	base := fixedNow()

	for i := 0; i < 3; i++ {
		if !rl.Allow(base.Add(time.Duration(i) * time.Millisecond)) {
			t.Fatalf("event %d must be allowed", i)
		}
	}
	if rl.Allow(base.Add(10 * time.Millisecond)) {
		t.Fatalf("4th event inside the window must be denied")
	}
	if !rl.Allow(base.Add(1100 * time.Millisecond)) {
		t.Fatalf("event after the window must be allowed")
	}
}

func TestRateLimiter_InvalidInputsUseDefaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("limit=%d window=%s", rl.limit, rl.window)
	}
}
