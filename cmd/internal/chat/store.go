package chat

import (
	"context"
	"time"
)

// Tx is the set of operations available inside Store.RunTx. Everything done through a Tx
// commits together or not at all.
type Tx interface {
	MessageExists(ctx context.Context, id string) (bool, error)
	// InsertMessage returns ErrDuplicateMessage when the id is taken.
	InsertMessage(ctx context.Context, m Message) error
	// UpdateConversationSummary returns ErrConversationNotFound when no conversation matches.
	UpdateConversationSummary(ctx context.Context, conversationID, lastMessage string, at time.Time) error
}

// Store persists conversations and messages.
//
// Requirements:
//   - RunTx commits when fn returns nil and rolls back everything otherwise.
//   - Message ids are unique; conversation pair keys are unique.
//   - Errors worth retrying are marked with retry.Transient.
type Store interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	MessageExists(ctx context.Context, id string) (bool, error)
	GetMessage(ctx context.Context, id string) (Message, error)

	GetConversation(ctx context.Context, id string) (Conversation, error)
	FindConversationByPair(ctx context.Context, pairKey string) (Conversation, error)
	// InsertConversation returns ErrDuplicateConversation when the pair key is taken.
	InsertConversation(ctx context.Context, c Conversation) error
	// SetFriend sets userID's friend flag, adding it when absent, and returns the updated conversation.
	SetFriend(ctx context.Context, conversationID, userID string, value bool, now time.Time) (Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// ListUnread returns messages received by userID it has not seen, newest first.
	ListUnread(ctx context.Context, userID string) ([]Message, error)
	// MarkSeen adds userID to seenBy of every message of the conversation and returns how many changed.
	MarkSeen(ctx context.Context, conversationID, userID string) (int64, error)

	Close() error
}
