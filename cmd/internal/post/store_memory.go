package post

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// InMemoryStore is a process-local Store for development and tests.
type InMemoryStore struct {
	mu    sync.Mutex
	posts []Post
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(ctx context.Context, p Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p.clone())
	return nil
}

func (s *InMemoryStore) FromOwners(ctx context.Context, owners []string) ([]Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Post
	for _, p := range s.posts {
		if slices.Contains(owners, p.Owner) {
			out = append(out, p.clone())
		}
	}
	slices.SortFunc(out, func(a, b Post) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
