// Package events publishes domain events for committed writes to downstream consumers.
//
// Publishing happens after the write is durable; a publish failure is logged by the caller and
// never undoes or fails the write.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeMessageCreated      = "message.created"
	TypeConversationCreated = "conversation.created"
	TypeActuCreated         = "actu.created"
	TypeGiftCreated         = "gift.created"
	TypePostCreated         = "post.created"
	TypeUserRegistered      = "user.registered"
)

// Event is one published record. Key selects the partition, so events sharing a key
// (a conversation id, a user id) stay ordered.
type Event struct {
	Type string    `json:"type"`
	Key  string    `json:"key"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
