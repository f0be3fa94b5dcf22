package actu

import (
	"context"
	"time"
)

// Store persists actus.
type Store interface {
	Insert(ctx context.Context, a Actu) error
	// Received returns the visible actus addressed to userID, newest first.
	Received(ctx context.Context, userID string, now time.Time) ([]Actu, error)
	// MarkViewed records one view per viewer. It reports whether a view was added and returns
	// ErrNotFound when the actu does not exist.
	MarkViewed(ctx context.Context, actuID, viewerID string, at time.Time) (bool, error)
	// DeactivateExpired flips isActive off for actus expired at now.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
