package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	v1 "layoo/contracts/realtime/v1"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/media"
	"layoo/cmd/internal/observability"
	"layoo/cmd/internal/retry"
)

const (
	// MaxContentChars bounds text message content, in runes.
	MaxContentChars = 4000
	maxIDLen        = 128
)

// Broadcaster delivers an event to every connection in a room.
type Broadcaster interface {
	EmitToRoom(roomID, event string, payload any) int
}

// SendInput is a send request. ID is generated by the client and is the idempotency key.
type SendInput struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationID"`
	SenderID       string         `json:"senderID"`
	Type           MessageType    `json:"type"`
	Content        string         `json:"content"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// SendResult describes an accepted send.
type SendResult struct {
	MessageID string
	Duplicate bool
	// URL is the stored file's public URL for file variants.
	URL     string
	Message Message
}

// Service is the chat application layer: message sends and conversation management.
type Service struct {
	log     *slog.Logger
	store   Store
	writer  *Writer
	uploads media.Uploader
	bcast   Broadcaster
	events  events.Publisher

	policy retry.Policy
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithUploader sets the object storage used by file variants.
func WithUploader(u media.Uploader) Option { return func(s *Service) { s.uploads = u } }

// WithPublisher sets where committed messages and new conversations are published.
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithTxPolicy bounds and retries each store call.
func WithTxPolicy(p retry.Policy) Option { return func(s *Service) { s.policy = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs a Service. m may be nil.
func NewService(log *slog.Logger, store Store, bcast Broadcaster, m *observability.Metrics, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		log:    log,
		store:  store,
		bcast:  bcast,
		events: events.Nop{},
		policy: retry.Once(5 * time.Second),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.writer = NewWriter(store, s.policy, m)
	return s
}

func (in *SendInput) normalize() {
	in.ID = normalizeID(in.ID)
	in.ConversationID = normalizeID(in.ConversationID)
	in.SenderID = normalizeID(in.SenderID)
	in.Type = MessageType(strings.TrimSpace(string(in.Type)))
}

func (in SendInput) validateEnvelope() error {
	switch {
	case in.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidInput)
	case len(in.ID) > maxIDLen:
		return fmt.Errorf("%w: id too long", ErrInvalidInput)
	case in.ConversationID == "":
		return fmt.Errorf("%w: missing conversationID", ErrInvalidInput)
	case in.SenderID == "":
		return fmt.Errorf("%w: missing senderID", ErrInvalidInput)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, in.Type)
	}
	return nil
}

// SendText stores a text message and broadcasts it to the conversation room once committed.
// Content is the conversation summary.
func (s *Service) SendText(ctx context.Context, in SendInput) (SendResult, error) {
	in.normalize()
	if in.Type == "" {
		in.Type = TypeText
	}
	if err := in.validateEnvelope(); err != nil {
		return SendResult{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return SendResult{}, fmt.Errorf("%w: missing content", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentChars {
		return SendResult{}, fmt.Errorf("%w: content too long", ErrInvalidInput)
	}
	return s.send(ctx, in, in.Content)
}

// SendContact stores a shared contact. Payload must carry contactName.
func (s *Service) SendContact(ctx context.Context, in SendInput) (SendResult, error) {
	in.normalize()
	if in.Type == "" {
		in.Type = TypeContact
	}
	if err := in.validateEnvelope(); err != nil {
		return SendResult{}, err
	}
	if len(in.Payload) == 0 {
		return SendResult{}, fmt.Errorf("%w: missing payload", ErrInvalidInput)
	}
	name, _ := in.Payload["contactName"].(string)
	in.Content = "Contact: " + name
	return s.send(ctx, in, "Contact")
}

// SendAudio uploads an audio file and stores the message with content and payload.audioUrl
// set to the stored URL.
func (s *Service) SendAudio(ctx context.Context, in SendInput, f media.File) (SendResult, error) {
	in.normalize()
	if in.Type == "" {
		in.Type = TypeAudio
	}
	return s.sendFile(ctx, in, f, "audioUrl", "Audio")
}

// SendDocument uploads a document and stores the message with payload.fileUrl.
func (s *Service) SendDocument(ctx context.Context, in SendInput, f media.File) (SendResult, error) {
	in.normalize()
	if in.Type == "" {
		in.Type = TypeDocument
	}
	return s.sendFile(ctx, in, f, "fileUrl", "Document")
}

// SendMedia uploads an image or video and stores the message with payload.mediaUrl.
// The type defaults from the file's MIME type.
func (s *Service) SendMedia(ctx context.Context, in SendInput, f media.File) (SendResult, error) {
	in.normalize()
	if in.Type == "" {
		switch f.Kind() {
		case "video":
			in.Type = TypeVideo
		default:
			in.Type = TypeImage
		}
	}
	return s.sendFile(ctx, in, f, "mediaUrl", "Média")
}

func (s *Service) sendFile(ctx context.Context, in SendInput, f media.File, urlKey, summary string) (SendResult, error) {
	// Client hang-ups must not abandon a half-finished send.
	ctx = context.WithoutCancel(ctx)

	if err := in.validateEnvelope(); err != nil {
		media.Remove(f.Path)
		return SendResult{}, err
	}
	if f.Path == "" {
		return SendResult{}, fmt.Errorf("%w: missing file", ErrInvalidInput)
	}
	if s.uploads == nil {
		media.Remove(f.Path)
		return SendResult{}, fmt.Errorf("%w: no uploader configured", media.ErrUpload)
	}

	var exists bool
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		exists, err = s.store.MessageExists(ctx, in.ID)
		return err
	})
	if err != nil {
		media.Remove(f.Path)
		return SendResult{}, fmt.Errorf("%w: %w", ErrTransaction, err)
	}
	if exists {
		media.Remove(f.Path)
		s.log.Info("chat.write.duplicate", "message_id", in.ID, "conversation_id", in.ConversationID)
		return SendResult{MessageID: in.ID, Duplicate: true}, nil
	}

	url, err := s.uploads.Upload(ctx, f.Path)
	if err != nil {
		media.Remove(f.Path)
		s.log.Error("chat.upload.fail", "message_id", in.ID, "file", f.Name, "err", err)
		return SendResult{}, err
	}

	payload := make(map[string]any, len(in.Payload)+1)
	for k, v := range in.Payload {
		payload[k] = v
	}
	payload[urlKey] = url
	in.Payload = payload
	in.Content = url

	res, err := s.send(ctx, in, summary)
	if err != nil {
		return SendResult{}, err
	}
	if res.Duplicate {
		s.log.Warn("chat.upload.orphaned", "message_id", in.ID, "url", url)
	}
	res.URL = url
	return res, nil
}

func (s *Service) send(ctx context.Context, in SendInput, summary string) (SendResult, error) {
	ctx = context.WithoutCancel(ctx)

	msg := Message{
		ID:             in.ID,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Type:           in.Type,
		Content:        in.Content,
		Payload:        in.Payload,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
		SeenBy:         []string{in.SenderID},
	}

	res, err := s.writer.Write(ctx, msg, summary)
	if err != nil {
		s.log.Error("chat.write.abort", "message_id", in.ID, "conversation_id", in.ConversationID, "err", err)
		return SendResult{}, err
	}
	if res.Duplicate {
		s.log.Info("chat.write.duplicate", "message_id", in.ID, "conversation_id", in.ConversationID)
		return SendResult{MessageID: in.ID, Duplicate: true}, nil
	}

	s.log.Info("chat.write.commit", "message_id", msg.ID, "conversation_id", msg.ConversationID, "type", string(msg.Type))
	s.broadcast(msg)
	s.publish(ctx, events.TypeMessageCreated, msg.ConversationID, msg)

	return SendResult{MessageID: msg.ID, Message: msg}, nil
}

func (s *Service) broadcast(m Message) {
	if s.bcast == nil {
		return
	}
	s.bcast.EmitToRoom(m.ConversationID, v1.TypeNewMessage, v1.NewMessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           string(m.Type),
		CreatedAt:      m.CreatedAt,
		SeenBy:         m.SeenBy,
		Payload:        m.Payload,
	})
}

func (s *Service) publish(ctx context.Context, typ, key string, data any) {
	ev := events.Event{Type: typ, Key: key, At: s.now().UTC(), Data: data}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("chat.publish.fail", "type", typ, "key", key, "err", err)
	}
}
