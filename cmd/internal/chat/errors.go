package chat

import "errors"

var (
	// ErrInvalidInput is returned before any store access when a request misses required fields.
	ErrInvalidInput = errors.New("chat: invalid input")

	// ErrTransaction wraps any failure of the transactional write. Nothing was persisted.
	ErrTransaction = errors.New("chat: transaction failed")

	// ErrConversationNotFound is returned when the referenced conversation does not exist.
	ErrConversationNotFound = errors.New("chat: conversation not found")

	// ErrMessageNotFound is returned by point lookups of unknown messages.
	ErrMessageNotFound = errors.New("chat: message not found")

	// ErrDuplicateMessage is returned by a store when a message id is already taken.
	ErrDuplicateMessage = errors.New("chat: duplicate message id")

	// ErrDuplicateConversation is returned by a store when the participant pair already has a conversation.
	ErrDuplicateConversation = errors.New("chat: duplicate conversation")
)
