package realtime

import "time"

// RateLimiter caps inbound events per connection over a sliding window. It keeps the last
// limit accept times in a ring; an event is allowed when the oldest of them has left the window.
//
// A RateLimiter belongs to one read loop and is not safe for concurrent use.
type RateLimiter struct {
	ring   []time.Time
	next   int
	limit  int
	window time.Duration
}

// NewRateLimiter falls back to the gateway defaults for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{ring: make([]time.Time, limit), limit: limit, window: window}
}

// Allow records an event at now and reports whether it fits the window.
func (r *RateLimiter) Allow(now time.Time) bool {
	oldest := r.ring[r.next]
	if !oldest.IsZero() && now.Sub(oldest) < r.window {
		return false
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % r.limit
	return true
}
