package post

import "context"

// Store persists posts.
type Store interface {
	Insert(ctx context.Context, p Post) error
	// FromOwners returns the posts of any of owners, newest first.
	FromOwners(ctx context.Context, owners []string) ([]Post, error)
}
