package chat

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a process-local Store for development and tests.
//
// Transactions are serialized on one mutex and staged: nothing a transaction does becomes
// visible unless fn returns nil. fn must not call back into the store's non-Tx methods.
type InMemoryStore struct {
	mu sync.Mutex

	messages      map[string]Message
	conversations map[string]Conversation
	byPair        map[string]string
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages:      make(map[string]Message),
		conversations: make(map[string]Conversation),
		byPair:        make(map[string]string),
	}
}

func (s *InMemoryStore) Close() error { return nil }

type memSummary struct {
	text string
	at   time.Time
}

type memTx struct {
	s         *InMemoryStore
	messages  map[string]Message
	summaries map[string]memSummary
}

func (t *memTx) MessageExists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := t.messages[id]; ok {
		return true, nil
	}
	_, ok := t.s.messages[id]
	return ok, nil
}

func (t *memTx) InsertMessage(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ok, _ := t.MessageExists(ctx, m.ID); ok {
		return ErrDuplicateMessage
	}
	t.messages[m.ID] = m.clone()
	return nil
}

func (t *memTx) UpdateConversationSummary(ctx context.Context, conversationID, lastMessage string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.s.conversations[conversationID]; !ok {
		return ErrConversationNotFound
	}
	t.summaries[conversationID] = memSummary{text: lastMessage, at: at}
	return nil
}

func (s *InMemoryStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, messages: make(map[string]Message), summaries: make(map[string]memSummary)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, m := range tx.messages {
		s.messages[id] = m
	}
	for id, sum := range tx.summaries {
		c := s.conversations[id]
		c.LastMessage = sum.text
		c.LastMessageAt = sum.at
		c.UpdatedAt = sum.at
		s.conversations[id] = c
	}
	return nil
}

func (s *InMemoryStore) MessageExists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.messages[id]
	return ok, nil
}

func (s *InMemoryStore) GetMessage(ctx context.Context, id string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	return m.clone(), nil
}

func (s *InMemoryStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return c.clone(), nil
}

func (s *InMemoryStore) FindConversationByPair(ctx context.Context, pairKey string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPair[pairKey]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return s.conversations[id].clone(), nil
}

func (s *InMemoryStore) InsertConversation(ctx context.Context, c Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ID == "" || c.PairKey == "" {
		return errors.New("chat: conversation id and pair key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPair[c.PairKey]; ok {
		return ErrDuplicateConversation
	}
	if _, ok := s.conversations[c.ID]; ok {
		return ErrDuplicateConversation
	}
	s.conversations[c.ID] = c.clone()
	s.byPair[c.PairKey] = c.ID
	return nil
}

func (s *InMemoryStore) SetFriend(ctx context.Context, conversationID, userID string, value bool, now time.Time) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	c = c.clone()
	i := slices.IndexFunc(c.IsFriend, func(f FriendFlag) bool { return f.UserID == userID })
	if i < 0 {
		c.IsFriend = append(c.IsFriend, FriendFlag{UserID: userID, Value: value})
	} else {
		c.IsFriend[i].Value = value
	}
	c.UpdatedAt = now
	s.conversations[conversationID] = c
	return c.clone(), nil
}

func (s *InMemoryStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c.clone())
		}
	}
	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *InMemoryStore) ListUnread(ctx context.Context, userID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.SenderID == userID || slices.Contains(m.SeenBy, userID) {
			continue
		}
		c, ok := s.conversations[m.ConversationID]
		if !ok || !c.HasParticipant(userID) {
			continue
		}
		out = append(out, m.clone())
	}
	slices.SortFunc(out, func(a, b Message) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *InMemoryStore) MarkSeen(ctx context.Context, conversationID, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.messages {
		if m.ConversationID != conversationID || slices.Contains(m.SeenBy, userID) {
			continue
		}
		m.SeenBy = append(slices.Clone(m.SeenBy), userID)
		s.messages[id] = m
		n++
	}
	return n, nil
}
