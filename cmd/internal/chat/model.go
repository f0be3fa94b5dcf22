// Package chat implements one-to-one conversations and the idempotent message write path.
//
// A send is accepted at most once per client-supplied message id: the existence check, the
// message insert and the conversation summary update run in one store transaction, and the
// new_message event is emitted only after that transaction commits.
package chat

import (
	"slices"
	"strings"
	"time"
)

// MessageType tags the content of a message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
	TypeContact  MessageType = "contact"
	TypeResponse MessageType = "response"
	TypePost     MessageType = "post"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeContact, TypeResponse, TypePost:
		return true
	}
	return false
}

// Message is a persisted chat message. ID is client-supplied and doubles as the idempotency key.
// Content and Type never change once written; SeenBy only grows.
type Message struct {
	ID             string         `bson:"_id" json:"id"`
	ConversationID string         `bson:"conversationID" json:"conversationID"`
	SenderID       string         `bson:"senderID" json:"senderID"`
	Type           MessageType    `bson:"type" json:"type"`
	Content        string         `bson:"content" json:"content"`
	Payload        map[string]any `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	SeenBy         []string       `bson:"seenBy" json:"seenBy"`
}

func (m Message) clone() Message {
	m.SeenBy = slices.Clone(m.SeenBy)
	if m.Payload != nil {
		p := make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			p[k] = v
		}
		m.Payload = p
	}
	return m
}

// FriendFlag records whether one participant confirmed the relationship.
type FriendFlag struct {
	UserID string `bson:"userID" json:"userID"`
	Value  bool   `bson:"value" json:"value"`
}

// Conversation is a one-to-one conversation. PairKey is unique per unordered participant pair.
type Conversation struct {
	ID            string       `bson:"_id" json:"id"`
	Participants  []string     `bson:"participants" json:"participants"`
	PairKey       string       `bson:"pairKey" json:"pairKey"`
	IsFriend      []FriendFlag `bson:"isFriend" json:"isFriend"`
	LastMessage   string       `bson:"lastMessage" json:"lastMessage"`
	LastMessageAt time.Time    `bson:"lastMessageAt" json:"lastMessageAt"`
	CreatedAt     time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time    `bson:"updatedAt" json:"updatedAt"`
}

func (c Conversation) clone() Conversation {
	c.Participants = slices.Clone(c.Participants)
	c.IsFriend = slices.Clone(c.IsFriend)
	return c
}

// HasParticipant reports whether userID takes part in c.
func (c Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Contact returns the other participant from userID's point of view.
func (c Conversation) Contact(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// FriendFor returns userID's friend flag (false when absent).
func (c Conversation) FriendFor(userID string) bool {
	for _, f := range c.IsFriend {
		if f.UserID == userID {
			return f.Value
		}
	}
	return false
}

// PairKey returns the order-independent key of a participant pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Summary is one entry of a user's conversation list.
type Summary struct {
	ConversationID string    `json:"conversationID"`
	ContactID      string    `json:"contactID"`
	HasChatted     bool      `json:"hasChatted"`
	IsFriend       bool      `json:"isFriend"`
	LastMessage    string    `json:"lastMessage"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

// Summaries builds the list view of convs for userID.
func Summaries(userID string, convs []Conversation) []Summary {
	out := make([]Summary, 0, len(convs))
	for _, c := range convs {
		out = append(out, Summary{
			ConversationID: c.ID,
			ContactID:      c.Contact(userID),
			HasChatted:     true,
			IsFriend:       c.FriendFor(userID),
			LastMessage:    c.LastMessage,
			LastMessageAt:  c.LastMessageAt,
		})
	}
	return out
}

func normalizeID(s string) string { return strings.TrimSpace(s) }
