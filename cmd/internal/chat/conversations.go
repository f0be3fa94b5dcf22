package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"layoo/cmd/internal/events"
	"layoo/cmd/internal/ids"
	"layoo/cmd/internal/retry"
)

// CreateResult is returned by CreateOrGet.
type CreateResult struct {
	Conversation Conversation
	ContactID    string
	Created      bool
}

// CreateOrGet returns the conversation between userID and contactID, creating it when absent.
//
// A new conversation marks userID as friend and contactID as not yet; an existing one gets
// userID's flag set to true. Concurrent calls for the same pair converge on one document: the
// pair key is unique in the store and calls within this process are collapsed.
func (s *Service) CreateOrGet(ctx context.Context, userID, contactID string) (CreateResult, error) {
	userID, contactID = normalizeID(userID), normalizeID(contactID)
	if userID == "" || contactID == "" {
		return CreateResult{}, fmt.Errorf("%w: userID and contactID are required", ErrInvalidInput)
	}
	if userID == contactID {
		return CreateResult{}, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidInput)
	}

	key := PairKey(userID, contactID)
	v, err, _ := s.group.Do(key+"|"+userID, func() (any, error) {
		return s.createOrGet(context.WithoutCancel(ctx), userID, contactID, key)
	})
	if err != nil {
		return CreateResult{}, err
	}
	res := v.(CreateResult)
	res.Conversation = res.Conversation.clone()
	return res, nil
}

func (s *Service) createOrGet(ctx context.Context, userID, contactID, key string) (CreateResult, error) {
	existing, err := s.findByPair(ctx, key)
	switch {
	case err == nil:
		return s.befriend(ctx, existing, userID, contactID)
	case !errors.Is(err, ErrConversationNotFound):
		return CreateResult{}, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	c := Conversation{
		ID:           ids.New(),
		Participants: []string{userID, contactID},
		PairKey:      key,
		IsFriend: []FriendFlag{
			{UserID: userID, Value: true},
			{UserID: contactID, Value: false},
		},
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return s.store.InsertConversation(ctx, c)
	})
	if errors.Is(err, ErrDuplicateConversation) {
		// Another process created the pair first.
		existing, ferr := s.findByPair(ctx, key)
		if ferr != nil {
			return CreateResult{}, ferr
		}
		return s.befriend(ctx, existing, userID, contactID)
	}
	if err != nil {
		return CreateResult{}, err
	}

	s.log.Info("chat.conversation.create", "conversation_id", c.ID, "user_id", userID, "contact_id", contactID)
	s.publish(ctx, events.TypeConversationCreated, c.ID, c)
	return CreateResult{Conversation: c, ContactID: contactID, Created: true}, nil
}

func (s *Service) findByPair(ctx context.Context, key string) (Conversation, error) {
	var c Conversation
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		c, err = s.store.FindConversationByPair(ctx, key)
		return err
	})
	return c, err
}

func (s *Service) befriend(ctx context.Context, c Conversation, userID, contactID string) (CreateResult, error) {
	if c.FriendFor(userID) {
		return CreateResult{Conversation: c, ContactID: contactID}, nil
	}
	var updated Conversation
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		updated, err = s.store.SetFriend(ctx, c.ID, userID, true, s.now().UTC().Truncate(time.Millisecond))
		return err
	})
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Conversation: updated, ContactID: contactID}, nil
}

// ListSummaries returns userID's conversations, most recently active first.
func (s *Service) ListSummaries(ctx context.Context, userID string) ([]Summary, error) {
	userID = normalizeID(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing userID", ErrInvalidInput)
	}
	var convs []Conversation
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		convs, err = s.store.ListConversations(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Summaries(userID, convs), nil
}

// Unread groups the messages userID received and has not seen by conversation id, newest first.
func (s *Service) Unread(ctx context.Context, userID string) (map[string][]Message, error) {
	userID = normalizeID(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing userID", ErrInvalidInput)
	}
	var msgs []Message
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		msgs, err = s.store.ListUnread(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Message)
	for _, m := range msgs {
		out[m.ConversationID] = append(out[m.ConversationID], m)
	}
	return out, nil
}

// MarkSeen adds userID to seenBy of every message in the conversation. Repeating it is a no-op.
func (s *Service) MarkSeen(ctx context.Context, conversationID, userID string) (int64, error) {
	conversationID, userID = normalizeID(conversationID), normalizeID(userID)
	if conversationID == "" || userID == "" {
		return 0, fmt.Errorf("%w: conversationID and userID are required", ErrInvalidInput)
	}
	var n int64
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		n, err = s.store.MarkSeen(ctx, conversationID, userID)
		return err
	})
	return n, err
}

// IsParticipant reports whether userID belongs to the conversation. Unknown conversations are
// reported as false without error.
func (s *Service) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.HasParticipant(userID), nil
}
