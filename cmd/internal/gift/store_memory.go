package gift

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a process-local Store for development and tests.
type InMemoryStore struct {
	mu    sync.Mutex
	gifts map[string]Gift
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{gifts: make(map[string]Gift)}
}

func (s *InMemoryStore) Insert(ctx context.Context, g Gift) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gifts[g.ID] = g.clone()
	return nil
}

func (s *InMemoryStore) FromOwners(ctx context.Context, owners []string, now time.Time) ([]Gift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Gift
	for _, g := range s.gifts {
		if g.Visible(now) && slices.Contains(owners, g.Owner) {
			out = append(out, g.clone())
		}
	}
	slices.SortFunc(out, func(a, b Gift) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *InMemoryStore) React(ctx context.Context, giftID, userID string, r Reaction) (Gift, error) {
	if err := ctx.Err(); err != nil {
		return Gift{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gifts[giftID]
	if !ok {
		return Gift{}, ErrNotFound
	}
	g = g.clone()
	set := &g.LikedBy
	if r == Dislike {
		set = &g.DislikeBy
	}
	if !slices.Contains(*set, userID) {
		*set = append(*set, userID)
	}
	s.gifts[giftID] = g
	return g.clone(), nil
}

func (s *InMemoryStore) MarkViewed(ctx context.Context, giftID, userID string) (Gift, bool, error) {
	if err := ctx.Err(); err != nil {
		return Gift{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gifts[giftID]
	if !ok {
		return Gift{}, false, ErrNotFound
	}
	if slices.Contains(g.ViewedBy, userID) {
		return g.clone(), false, nil
	}
	g = g.clone()
	g.ViewedBy = append(g.ViewedBy, userID)
	g.ViewersCount++
	s.gifts[giftID] = g
	return g.clone(), true, nil
}

func (s *InMemoryStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, g := range s.gifts {
		if g.IsActive && !g.ExpiresAt.After(now) {
			g.IsActive = false
			s.gifts[id] = g
			n++
		}
	}
	return n, nil
}
