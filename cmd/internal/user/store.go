package user

import (
	"context"
	"time"
)

// Store persists users.
type Store interface {
	// Insert returns ErrDuplicate when the handle is taken.
	Insert(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	Update(ctx context.Context, id string, up Update, now time.Time) (User, error)
	// FindByPhones returns users whose normalized phone is one of digits.
	FindByPhones(ctx context.Context, digits []string) ([]User, error)
	// Profiles returns the profiles of the ids that exist.
	Profiles(ctx context.Context, ids []string) (map[string]Profile, error)
	// AddCompany adds companyID to the companies of the user with handle userID, once.
	AddCompany(ctx context.Context, userID, companyID string) ([]string, error)
	Companies(ctx context.Context, userID string) ([]string, error)
}
