package actu

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
	actus map[string]Actu
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{actus: make(map[string]Actu)}
}

func (s *InMemoryStore) Insert(ctx context.Context, a Actu) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actus[a.ID] = a.clone()
	return nil
}

func (s *InMemoryStore) Received(ctx context.Context, userID string, now time.Time) ([]Actu, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Actu
	for _, a := range s.actus {
		if a.Visible(now) && slices.Contains(a.Recipients, userID) {
			out = append(out, a.clone())
		}
	}
	slices.SortFunc(out, func(a, b Actu) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *InMemoryStore) MarkViewed(ctx context.Context, actuID, viewerID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actus[actuID]
	if !ok {
		return false, ErrNotFound
	}
	if slices.ContainsFunc(a.Views, func(v View) bool { return v.ViewerID == viewerID }) {
		return false, nil
	}
	a.Views = append(slices.Clone(a.Views), View{ViewerID: viewerID, ViewedAt: at})
	a.UpdatedAt = at
	s.actus[actuID] = a
	return true, nil
}

func (s *InMemoryStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.actus {
		if a.IsActive && !a.ExpiresAt.After(now) {
			a.IsActive = false
			s.actus[id] = a
			n++
		}
	}
	return n, nil
}
