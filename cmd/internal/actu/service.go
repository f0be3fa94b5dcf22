package actu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	v1 "layoo/contracts/realtime/v1"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/ids"
	"layoo/cmd/internal/media"
	"layoo/cmd/internal/user"
)

// Directory resolves owner profiles.
type Directory interface {
	Profiles(ctx context.Context, ids []string) (map[string]user.Profile, error)
}

// Notifier delivers an event to every connection of a user.
type Notifier interface {
	EmitToUser(userID, event string, payload any) int
}

// Previewer renders a reduced copy of an image next to it.
type Previewer interface {
	Preview(path string) (string, error)
}

// PartInput describes one part of a create request. FileIndex points at the multipart field
// file<FileIndex>.
type PartInput struct {
	Type      PartType `json:"type"`
	FileIndex *int     `json:"fileIndex,omitempty"`
	Text      string   `json:"text,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// CreateInput is a create request. Files are keyed by multipart field name.
type CreateInput struct {
	Owner      string
	Recipients []string
	Parts      []PartInput
	Files      map[string]media.File
}

// Service implements actu creation, the recipient feed and view tracking.
type Service struct {
	log       *slog.Logger
	store     Store
	uploads   media.Uploader
	probe     media.Prober
	preview   Previewer
	dir       Directory
	notify    Notifier
	events    events.Publisher
	workDir   string
	probeWait time.Duration
	now       func() time.Time
}

// Deps groups the collaborators of a Service. Prober, Previewer, Directory, Notifier and
// Publisher are optional.
type Deps struct {
	Store     Store
	Uploader  media.Uploader
	Prober    media.Prober
	Previewer Previewer
	Directory Directory
	Notifier  Notifier
	Publisher events.Publisher
	// WorkDir receives generated thumbnails and previews.
	WorkDir string
}

// NewService constructs a Service.
func NewService(log *slog.Logger, d Deps) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		log:       log,
		store:     d.Store,
		uploads:   d.Uploader,
		probe:     d.Prober,
		preview:   d.Previewer,
		dir:       d.Directory,
		notify:    d.Notifier,
		events:    d.Publisher,
		workDir:   d.WorkDir,
		probeWait: 30 * time.Second,
		now:       time.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.Owner) == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	case in.Recipients == nil:
		return fmt.Errorf("%w: recipientIds is required", ErrInvalidInput)
	case len(in.Parts) == 0:
		return fmt.Errorf("%w: parts must be a non-empty array", ErrInvalidInput)
	}
	for i, p := range in.Parts {
		if !p.Type.Valid() {
			return fmt.Errorf("%w: part %d has unknown type %q", ErrInvalidInput, i, p.Type)
		}
		if p.FileIndex != nil {
			if _, ok := in.Files["file"+strconv.Itoa(*p.FileIndex)]; !ok {
				return fmt.Errorf("%w: file for fileIndex %d", media.ErrMissingFile, *p.FileIndex)
			}
		}
	}
	return nil
}

func filePaths(files map[string]media.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

// Create uploads the media of every part, stores the actu and notifies each recipient.
func (s *Service) Create(ctx context.Context, in CreateInput) (Summary, error) {
	ctx = context.WithoutCancel(ctx)

	// Uploaded files belong to the uploader; everything left over is removed.
	pending := maps.Clone(in.Files)
	defer func() { media.Remove(filePaths(pending)...) }()

	if err := in.validate(); err != nil {
		return Summary{}, err
	}

	parts := make([]Part, 0, len(in.Parts))
	for _, pi := range in.Parts {
		p := Part{Type: pi.Type, Text: pi.Text, URL: pi.URL}
		if pi.FileIndex != nil {
			field := "file" + strconv.Itoa(*pi.FileIndex)
			f, ok := pending[field]
			if !ok {
				return Summary{}, fmt.Errorf("%w: fileIndex %d is used twice", ErrInvalidInput, *pi.FileIndex)
			}
			if err := s.attach(ctx, &p, f); err != nil {
				return Summary{}, err
			}
			delete(pending, field)
		}
		parts = append(parts, p)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	a := Actu{
		ID:         ids.New(),
		Parts:      parts,
		Owner:      strings.TrimSpace(in.Owner),
		Recipients: in.Recipients,
		ExpiresAt:  now.Add(Lifetime),
		Views:      []View{},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Insert(ctx, a); err != nil {
		return Summary{}, fmt.Errorf("actu: insert: %w", err)
	}

	sum := s.summarize(ctx, []Actu{a})[0]
	s.log.Info("actu.create", "actu_id", a.ID, "owner", a.Owner, "parts", len(a.Parts), "recipients", len(a.Recipients))

	if s.notify != nil {
		for _, r := range a.Recipients {
			s.notify.EmitToUser(r, v1.TypeActuCreated, sum)
		}
	}
	if err := s.events.Publish(ctx, events.Event{Type: events.TypeActuCreated, Key: a.Owner, At: now, Data: sum}); err != nil {
		s.log.Warn("actu.publish.fail", "actu_id", a.ID, "err", err)
	}
	return sum, nil
}

// attach extracts metadata from f, uploads derived files and finally f itself.
// Metadata and derived-file failures are logged and skipped; only the main upload is fatal.
func (s *Service) attach(ctx context.Context, p *Part, f media.File) error {
	switch f.Kind() {
	case "video":
		p.Duration = s.duration(ctx, f)
		if s.probe != nil {
			pctx, cancel := context.WithTimeout(ctx, s.probeWait)
			thumb, err := s.probe.Thumbnail(pctx, f.Path, s.workDir)
			cancel()
			if err != nil {
				s.log.Warn("actu.thumbnail.fail", "file", f.Name, "err", err)
			} else {
				p.ThumbnailURL = s.uploadDerived(ctx, thumb)
			}
		}
	case "audio":
		p.Duration = s.duration(ctx, f)
	case "image":
		if s.preview != nil && f.MIME != "image/gif" {
			prev, err := s.preview.Preview(f.Path)
			if err != nil {
				s.log.Warn("actu.preview.fail", "file", f.Name, "err", err)
			} else {
				p.PreviewURL = s.uploadDerived(ctx, prev)
			}
		}
	}

	if s.uploads == nil {
		return fmt.Errorf("%w: no uploader configured", media.ErrUpload)
	}
	url, err := s.uploads.Upload(ctx, f.Path)
	if err != nil {
		s.log.Error("actu.upload.fail", "file", f.Name, "err", err)
		if !errors.Is(err, media.ErrUpload) {
			err = fmt.Errorf("%w: %w", media.ErrUpload, err)
		}
		return err
	}
	p.URL = url
	return nil
}

func (s *Service) duration(ctx context.Context, f media.File) int {
	if s.probe == nil {
		return 0
	}
	pctx, cancel := context.WithTimeout(ctx, s.probeWait)
	defer cancel()
	d, err := s.probe.Duration(pctx, f.Path)
	if err != nil {
		s.log.Warn("actu.duration.fail", "file", f.Name, "err", err)
		return 0
	}
	return d
}

func (s *Service) uploadDerived(ctx context.Context, path string) string {
	if s.uploads == nil {
		media.Remove(path)
		return ""
	}
	url, err := s.uploads.Upload(ctx, path)
	if err != nil {
		media.Remove(path)
		s.log.Warn("actu.upload_derived.fail", "path", path, "err", err)
		return ""
	}
	return url
}

func (s *Service) summarize(ctx context.Context, actus []Actu) []Summary {
	var profiles map[string]user.Profile
	if s.dir != nil && len(actus) > 0 {
		owners := make([]string, 0, len(actus))
		for _, a := range actus {
			owners = append(owners, a.Owner)
		}
		var err error
		if profiles, err = s.dir.Profiles(ctx, owners); err != nil {
			s.log.Warn("actu.profiles.fail", "err", err)
		}
	}

	out := make([]Summary, 0, len(actus))
	for _, a := range actus {
		p := profiles[a.Owner]
		out = append(out, Summary{
			ID:                a.ID,
			Owner:             a.Owner,
			OwnerName:         p.Name,
			OwnerProfileImage: p.ProfileImage,
			Parts:             a.Parts,
			ExpiresAt:         a.ExpiresAt,
			CreatedAt:         a.CreatedAt,
		})
	}
	return out
}

// Received lists the visible actus addressed to userID, newest first.
func (s *Service) Received(ctx context.Context, userID string) ([]Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	actus, err := s.store.Received(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, actus), nil
}

// MarkRead records that userID viewed the actu. Repeating it keeps a single view.
func (s *Service) MarkRead(ctx context.Context, actuID, userID string) error {
	actuID, userID = strings.TrimSpace(actuID), strings.TrimSpace(userID)
	if actuID == "" || userID == "" {
		return fmt.Errorf("%w: actuId and userId are required", ErrInvalidInput)
	}
	added, err := s.store.MarkViewed(ctx, actuID, userID, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return err
	}
	if added {
		s.log.Debug("actu.view", "actu_id", actuID, "viewer", userID)
	}
	return nil
}

// Sweep deactivates expired actus.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeactivateExpired(ctx, s.now().UTC())
}
