package gift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "layoo/contracts/realtime/v1"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/ids"
	"layoo/cmd/internal/media"
	"layoo/cmd/internal/user"
)

// Contacts resolves the ids of the users in someone's address book.
type Contacts interface {
	ContactIDs(ctx context.Context, userID string) ([]string, error)
}

// Notifier delivers an event to every connection of a user.
type Notifier interface {
	EmitToUser(userID, event string, payload any) int
}

// CreateInput is a create request. File, when set, replaces Content with its uploaded URL.
type CreateInput struct {
	Owner      string
	Recipients []string
	Type       Type
	Content    string
	Caption    string
	File       *media.File
}

// Service implements gift creation, the contact feed and reactions.
type Service struct {
	log      *slog.Logger
	store    Store
	uploads  media.Uploader
	contacts Contacts
	notify   Notifier
	events   events.Publisher
	now      func() time.Time
}

// Deps groups the collaborators of a Service. Uploader is only needed for gifts with a file.
type Deps struct {
	Store     Store
	Uploader  media.Uploader
	Contacts  Contacts
	Notifier  Notifier
	Publisher events.Publisher
}

// NewService constructs a Service.
func NewService(log *slog.Logger, d Deps) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		log:      log,
		store:    d.Store,
		uploads:  d.Uploader,
		contacts: d.Contacts,
		notify:   d.Notifier,
		events:   d.Publisher,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

// Create uploads the optional file, stores the gift and notifies each recipient.
func (s *Service) Create(ctx context.Context, in CreateInput) (Gift, error) {
	ctx = context.WithoutCancel(ctx)
	in.Owner = strings.TrimSpace(in.Owner)

	switch {
	case in.Owner == "":
		s.discard(in.File)
		return Gift{}, fmt.Errorf("%w: ownerId is required", ErrInvalidInput)
	case !in.Type.Valid():
		s.discard(in.File)
		return Gift{}, fmt.Errorf("%w: type must be text, image or video", ErrInvalidInput)
	case in.File == nil && strings.TrimSpace(in.Content) == "":
		return Gift{}, fmt.Errorf("%w: content or file is required", ErrInvalidInput)
	}

	content := in.Content
	if in.File != nil {
		if s.uploads == nil {
			s.discard(in.File)
			return Gift{}, fmt.Errorf("%w: no uploader configured", media.ErrUpload)
		}
		url, err := s.uploads.Upload(ctx, in.File.Path)
		if err != nil {
			s.discard(in.File)
			s.log.Error("gift.upload.fail", "file", in.File.Name, "err", err)
			if !errors.Is(err, media.ErrUpload) {
				err = fmt.Errorf("%w: %w", media.ErrUpload, err)
			}
			return Gift{}, err
		}
		content = url
	}

	recipients := in.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	g := Gift{
		ID:         ids.New(),
		Type:       in.Type,
		Content:    content,
		Caption:    in.Caption,
		Owner:      in.Owner,
		Recipients: recipients,
		ViewedBy:   []string{},
		LikedBy:    []string{},
		DislikeBy:  []string{},
		IsActive:   true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(Lifetime),
	}
	if err := s.store.Insert(ctx, g); err != nil {
		return Gift{}, fmt.Errorf("gift: insert: %w", err)
	}
	s.log.Info("gift.create", "gift_id", g.ID, "owner", g.Owner, "type", g.Type, "recipients", len(g.Recipients))

	if s.notify != nil {
		for _, r := range g.Recipients {
			s.notify.EmitToUser(r, v1.TypeNewGift, g)
		}
	}
	if err := s.events.Publish(ctx, events.Event{Type: events.TypeGiftCreated, Key: g.Owner, At: now, Data: g}); err != nil {
		s.log.Warn("gift.publish.fail", "gift_id", g.ID, "err", err)
	}
	return g, nil
}

func (s *Service) discard(f *media.File) {
	if f != nil {
		media.Remove(f.Path)
	}
}

// Received lists the visible gifts owned by userID's contacts, newest first.
func (s *Service) Received(ctx context.Context, userID string) ([]Gift, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if s.contacts == nil {
		return []Gift{}, nil
	}
	owners, err := s.contacts.ContactIDs(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return []Gift{}, nil
	}
	return s.store.FromOwners(ctx, owners, s.now().UTC())
}

// React records a like or dislike and notifies the owner.
func (s *Service) React(ctx context.Context, giftID, userID string, r Reaction) error {
	giftID, userID = strings.TrimSpace(giftID), strings.TrimSpace(userID)
	if giftID == "" || userID == "" {
		return fmt.Errorf("%w: gift id and userId are required", ErrInvalidInput)
	}
	g, err := s.store.React(ctx, giftID, userID, r)
	if err != nil {
		return err
	}

	event := v1.TypeGiftLiked
	if r == Dislike {
		event = v1.TypeGiftDisliked
	}
	if s.notify != nil {
		s.notify.EmitToUser(g.Owner, event, v1.GiftReactionPayload{GiftID: g.ID, UserID: userID})
	}
	s.log.Debug("gift.react", "gift_id", g.ID, "user", userID, "reaction", r)
	return nil
}

// MarkRead records a view and returns the viewers so far. The owner is notified of new viewers.
func (s *Service) MarkRead(ctx context.Context, giftID, userID string) ([]string, error) {
	giftID, userID = strings.TrimSpace(giftID), strings.TrimSpace(userID)
	if giftID == "" || userID == "" {
		return nil, fmt.Errorf("%w: gift id and userId are required", ErrInvalidInput)
	}
	g, added, err := s.store.MarkViewed(ctx, giftID, userID)
	if err != nil {
		return nil, err
	}
	if added && s.notify != nil {
		s.notify.EmitToUser(g.Owner, v1.TypeGiftViewed, v1.GiftReactionPayload{GiftID: g.ID, UserID: userID})
	}
	return g.ViewedBy, nil
}

// Sweep deactivates expired gifts.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeactivateExpired(ctx, s.now().UTC())
}
