package user

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a process-local Store for development and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]User
	byHandle map[string]string
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]User), byHandle: make(map[string]string)}
}

func clone(u User) User {
	u.Regions = slices.Clone(u.Regions)
	u.Companies = slices.Clone(u.Companies)
	u.ContactsPhone = slices.Clone(u.ContactsPhone)
	return u
}

func (s *InMemoryStore) Insert(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHandle[u.UserID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.byID[u.ID]; ok {
		return ErrDuplicate
	}
	s.byID[u.ID] = clone(u)
	s.byHandle[u.UserID] = u.ID
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(u), nil
}

func (s *InMemoryStore) Update(ctx context.Context, id string, up Update, now time.Time) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	up.apply(&u)
	u.UpdatedAt = now
	s.byID[id] = u
	return clone(u), nil
}

func (s *InMemoryStore) FindByPhones(ctx context.Context, digits []string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.byID {
		if u.PhoneDigits != "" && slices.Contains(digits, u.PhoneDigits) {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func (s *InMemoryStore) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			out[id] = Profile{ID: u.ID, Name: u.Name, ProfileImage: u.ProfileImage}
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddCompany(ctx context.Context, userID, companyID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHandle[userID]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.byID[id]
	if !slices.Contains(u.Companies, companyID) {
		u.Companies = append(u.Companies, companyID)
		s.byID[id] = u
	}
	return slices.Clone(u.Companies), nil
}

func (s *InMemoryStore) Companies(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHandle[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(s.byID[id].Companies), nil
}
