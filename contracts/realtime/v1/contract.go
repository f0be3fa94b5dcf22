// Package v1 defines the layoo realtime protocol v1 contract.
//
// Event names are wire-stable and match what mobile clients already listen for.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated during the websocket handshake.
const Subprotocol = "layoo.realtime.v1"

// Client -> server events.
const (
	TypeJoinRoom                = "joinRoom"
	TypeLeaveRoom               = "leaveRoom"
	TypeTyping                  = "typing"
	TypeMessageReadRequest      = "message_read_request"
	TypeMessageDeliveredRequest = "message_delivered_request"
)

// Server -> client events.
const (
	TypeSession          = "session"
	TypeNewMessage       = "new_message"
	TypeMessageRead      = "message_read"
	TypeMessageDelivered = "message_delivered"
	TypeUserConnected    = "user_connected"
	TypeUserDisconnected = "user_disconnected"
	TypeActuCreated      = "actu_created"
	TypeNewGift          = "new_gift"
	TypeGiftLiked        = "gift_liked"
	TypeGiftDisliked     = "gift_disliked"
	TypeGiftViewed       = "gift_viewed"
	TypeError            = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation of an inbound (client -> server) envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeJoinRoom,
		TypeLeaveRoom,
		TypeTyping,
		TypeMessageReadRequest,
		TypeMessageDeliveredRequest:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}
