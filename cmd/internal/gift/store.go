package gift

import (
	"context"
	"time"
)

// Store persists gifts.
type Store interface {
	Insert(ctx context.Context, g Gift) error
	// FromOwners returns the visible gifts owned by any of owners, newest first.
	FromOwners(ctx context.Context, owners []string, now time.Time) ([]Gift, error)
	// React adds userID to the reaction set once and returns the updated gift.
	React(ctx context.Context, giftID, userID string, r Reaction) (Gift, error)
	// MarkViewed adds userID to viewedBy once, counting each new viewer. It reports whether the
	// viewer was new.
	MarkViewed(ctx context.Context, giftID, userID string) (Gift, bool, error)
	// DeactivateExpired flips isActive off for gifts expired at now.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
