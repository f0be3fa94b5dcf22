package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/ids"
	"layoo/cmd/internal/media"
	"layoo/cmd/internal/user"
)

// Contacts resolves the ids of the users in someone's address book.
type Contacts interface {
	ContactIDs(ctx context.Context, userID string) ([]string, error)
}

// Directory resolves owner profiles.
type Directory interface {
	Profiles(ctx context.Context, ids []string) (map[string]user.Profile, error)
}

// CreateInput is a create request. Name and ProfileImage are used when the owner has no
// stored profile.
type CreateInput struct {
	Owner          string
	Type           Type
	Title          string
	Content        string
	ContentFlags   map[string]bool
	Visibility     string
	AppearOnSearch bool
	Name           string
	ProfileImage   string
	Files          []media.File
}

// uploadConcurrency bounds the parallel uploads of one post.
const uploadConcurrency = 3

// Service implements post creation and the contact feed.
type Service struct {
	log      *slog.Logger
	store    Store
	uploads  media.Uploader
	contacts Contacts
	dir      Directory
	events   events.Publisher
	now      func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Store     Store
	Uploader  media.Uploader
	Contacts  Contacts
	Directory Directory
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
		dir:      d.Directory,
		events:   d.Publisher,
		now:      time.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Owner) == "":
		return fmt.Errorf("%w: userID is required", ErrInvalidInput)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case strings.TrimSpace(in.Visibility) == "":
		return fmt.Errorf("%w: visibility is required", ErrInvalidInput)
	case len(in.Files) > MaxFiles:
		return fmt.Errorf("%w: at most %d files", ErrInvalidInput, MaxFiles)
	}
	return nil
}

// Create uploads the files in parallel, keeping their order, and stores the post.
func (s *Service) Create(ctx context.Context, in CreateInput) (Post, error) {
	ctx = context.WithoutCancel(ctx)
	if err := in.validate(); err != nil {
		media.Remove(media.Paths(in.Files...)...)
		return Post{}, err
	}

	urls, err := s.uploadAll(ctx, in.Files)
	if err != nil {
		return Post{}, err
	}

	owner := strings.TrimSpace(in.Owner)
	name, image := in.Name, in.ProfileImage
	if s.dir != nil {
		profiles, err := s.dir.Profiles(ctx, []string{owner})
		if err != nil {
			s.log.Warn("post.profiles.fail", "owner", owner, "err", err)
		} else if p, ok := profiles[owner]; ok {
			name, image = p.Name, p.ProfileImage
		}
	}

	flags := maps.Clone(in.ContentFlags)
	if flags == nil {
		flags = map[string]bool{}
	}
	p := Post{
		ID:             ids.New(),
		Owner:          owner,
		Name:           name,
		ProfileImage:   image,
		Type:           in.Type,
		Title:          in.Title,
		Content:        in.Content,
		MediaURLs:      urls,
		ContentFlags:   flags,
		Visibility:     in.Visibility,
		AppearOnSearch: in.AppearOnSearch,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
		Uploaded:       true,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return Post{}, fmt.Errorf("post: insert: %w", err)
	}
	s.log.Info("post.create", "post_id", p.ID, "owner", p.Owner, "type", p.Type, "media", len(urls))

	if err := s.events.Publish(ctx, events.Event{Type: events.TypePostCreated, Key: p.Owner, At: p.CreatedAt, Data: p}); err != nil {
		s.log.Warn("post.publish.fail", "post_id", p.ID, "err", err)
	}
	return p, nil
}

// uploadAll uploads files concurrently. On failure, files that were not uploaded are removed.
func (s *Service) uploadAll(ctx context.Context, files []media.File) ([]string, error) {
	urls := make([]string, len(files))
	if len(files) == 0 {
		return urls, nil
	}
	if s.uploads == nil {
		media.Remove(media.Paths(files...)...)
		return nil, fmt.Errorf("%w: no uploader configured", media.ErrUpload)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			url, err := s.uploads.Upload(gctx, f.Path)
			if err != nil {
				return fmt.Errorf("%s: %w", f.OriginalName, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, f := range files {
			if urls[i] == "" {
				media.Remove(f.Path)
			}
		}
		s.log.Error("post.upload.fail", "files", len(files), "err", err)
		if !errors.Is(err, media.ErrUpload) {
			err = fmt.Errorf("%w: %w", media.ErrUpload, err)
		}
		return nil, err
	}
	return urls, nil
}

// Received lists the posts of userID's contacts, newest first.
func (s *Service) Received(ctx context.Context, userID string) ([]Post, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if s.contacts == nil {
		return []Post{}, nil
	}
	owners, err := s.contacts.ContactIDs(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return []Post{}, nil
	}
	return s.store.FromOwners(ctx, owners)
}
