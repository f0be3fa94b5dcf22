package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/ids"
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Anonymous  string   `json:"anonymous"`
	Name       string   `json:"name"`
	Gender     string   `json:"gender"`
	Location   Location `json:"location"`
	Type       string   `json:"type"`
	HasAccount *bool    `json:"hasAccount,omitempty"`
	IsLoggedIn *bool    `json:"isLoggedIn,omitempty"`
}

// Service implements account operations on top of a Store.
type Service struct {
	log    *slog.Logger
	store  Store
	events events.Publisher
	now    func() time.Time
}

// NewService constructs a Service. pub may be nil.
func NewService(log *slog.Logger, store Store, pub events.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{log: log, store: store, events: pub, now: time.Now}
}

const handleAttempts = 3

// Register creates an account with a generated handle.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Anonymous == "" || in.Name == "" || in.Gender == "" {
		return User{}, fmt.Errorf("%w: anonymous, name, gender and location are required", ErrInvalidInput)
	}
	if in.Location.Country == "" || in.Location.City == "" || in.Location.District == "" {
		return User{}, fmt.Errorf("%w: incomplete location", ErrInvalidInput)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	u := User{
		ID:            ids.New(),
		Type:          in.Type,
		Anonymous:     in.Anonymous,
		Name:          in.Name,
		Gender:        in.Gender,
		Location:      in.Location,
		Badge:         "none",
		HasAccount:    in.HasAccount == nil || *in.HasAccount,
		IsLoggedIn:    in.IsLoggedIn == nil || *in.IsLoggedIn,
		Companies:     []string{},
		ContactsPhone: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var err error
	for i := 0; i < handleAttempts; i++ {
		// Handles collide only within the same millisecond.
		u.UserID = Handle(in.Name, now.Add(time.Duration(i)*time.Millisecond))
		if err = s.store.Insert(ctx, u); !errors.Is(err, ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return User{}, err
	}

	s.log.Info("user.register", "id", u.ID, "user_id", u.UserID)
	if err := s.events.Publish(ctx, events.Event{Type: events.TypeUserRegistered, Key: u.ID, At: now, Data: u}); err != nil {
		s.log.Warn("user.publish.fail", "id", u.ID, "err", err)
	}
	return u, nil
}

// Update changes the given profile fields of user id.
func (s *Service) Update(ctx context.Context, id string, up Update) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if up.empty() {
		return s.store.Get(ctx, id)
	}
	return s.store.Update(ctx, id, up, s.now().UTC().Truncate(time.Millisecond))
}

// CheckContacts reports which phone numbers belong to an account. The result keeps the
// order of phones, normalized to digits.
func (s *Service) CheckContacts(ctx context.Context, phones []string) ([]ContactMatch, error) {
	cleaned := make([]string, len(phones))
	for i, p := range phones {
		cleaned[i] = NormalizePhone(p)
	}
	users, err := s.store.FindByPhones(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	byPhone := make(map[string]User, len(users))
	for _, u := range users {
		byPhone[u.PhoneDigits] = u
	}

	out := make([]ContactMatch, 0, len(cleaned))
	for _, p := range cleaned {
		m := ContactMatch{Phone: p, Badge: "none", Type: "company"}
		if u, ok := byPhone[p]; ok && p != "" {
			handle := u.UserID
			m.HasAccount = true
			m.UserID = &handle
			m.Badge = u.Badge
			m.Type = u.Type
			m.Secure = u.Secure
		}
		out = append(out, m)
	}
	return out, nil
}

// ContactIDs resolves the phone contacts of user id to account ids.
func (s *Service) ContactIDs(ctx context.Context, id string) ([]string, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	digits := make([]string, 0, len(u.ContactsPhone))
	for _, p := range u.ContactsPhone {
		if d := NormalizePhone(p); d != "" {
			digits = append(digits, d)
		}
	}
	if len(digits) == 0 {
		return nil, nil
	}
	users, err := s.store.FindByPhones(ctx, digits)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for _, c := range users {
		if c.ID != id {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

// Profiles returns the public profiles of ids. Unknown ids are absent from the map.
func (s *Service) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	return s.store.Profiles(ctx, ids)
}

// AddCompany links companyID to the user with handle userID.
func (s *Service) AddCompany(ctx context.Context, userID, companyID string) ([]string, error) {
	userID, companyID = strings.TrimSpace(userID), strings.TrimSpace(companyID)
	if userID == "" || companyID == "" {
		return nil, fmt.Errorf("%w: userID and companyID are required", ErrInvalidInput)
	}
	return s.store.AddCompany(ctx, userID, companyID)
}

// Companies lists the companies linked to the user with handle userID.
func (s *Service) Companies(ctx context.Context, userID string) ([]string, error) {
	return s.store.Companies(ctx, strings.TrimSpace(userID))
}
