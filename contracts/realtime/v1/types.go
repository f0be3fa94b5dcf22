package v1

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// SessionPayload acknowledges a successful handshake.
type SessionPayload struct {
	SessionID string `json:"sessionID"`
	UserID    string `json:"userID"`
}

// RoomPayload names a conversation room.
//
// Clients may send either a bare JSON string ("conv-1") or an object
// ({"conversationID":"conv-1"}); UnmarshalJSON accepts both.
type RoomPayload struct {
	ConversationID string `json:"conversationID"`
}

// UnmarshalJSON accepts a bare string or an object form.
func (p *RoomPayload) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		p.ConversationID = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		ConversationID string `json:"conversationID"`
		ConversationId string `json:"conversationId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.ConversationID = strings.TrimSpace(obj.ConversationID)
	if p.ConversationID == "" {
		p.ConversationID = strings.TrimSpace(obj.ConversationId)
	}
	if p.ConversationID == "" {
		return errors.New("missing conversationID")
	}
	return nil
}

// TypingPayload is relayed to the conversation room except the sender.
type TypingPayload struct {
	ConversationID string `json:"conversationID"`
	UserID         string `json:"userID"`
	IsTyping       bool   `json:"isTyping"`
}

// MessageReadPayload is both the request and the relayed event; ReadAt is stamped by the server.
type MessageReadPayload struct {
	ConversationID string     `json:"conversationId"`
	ReaderID       string     `json:"readerId"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// MessageDeliveredPayload is both the request and the relayed event.
type MessageDeliveredPayload struct {
	ConversationID string     `json:"conversationId"`
	ReceiverID     string     `json:"receiverId"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

// NewMessagePayload is broadcast to a conversation room after the message commits.
type NewMessagePayload struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationID"`
	SenderID       string         `json:"senderID"`
	Content        string         `json:"content"`
	Type           string         `json:"type"`
	CreatedAt      time.Time      `json:"createdAt"`
	SeenBy         []string       `json:"seenBy"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// PresencePayload announces a user's online/offline transition.
type PresencePayload struct {
	UserID string `json:"userID"`
}

// GiftReactionPayload is sent to a gift owner when someone reacts to or views it.
type GiftReactionPayload struct {
	GiftID string `json:"giftId"`
	UserID string `json:"userId"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
