// Package realtime contains the WebSocket gateway, the connection registry, room routing and
// presence for layoo clients.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"layoo/cmd/internal/ids"
	"layoo/cmd/internal/observability"
	v1 "layoo/contracts/realtime/v1"
)

// Hub owns the connection registry and the room router, and is the single place where
// server events are fanned out. Domain services only see its Emit* methods and never touch
// connections directly.
type Hub struct {
	log      *slog.Logger
	registry *Registry
	rooms    *Rooms
	metrics  *observability.Metrics
	mirror   PresenceMirror
	presence userLocks

	mirrorTimeout time.Duration
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics records connection, presence and delivery metrics.
func WithMetrics(m *observability.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithPresenceMirror records presence transitions in an external store.
func WithPresenceMirror(m PresenceMirror) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.mirror = m
		}
	}
}

// NewHub constructs an empty hub.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	h := &Hub{
		log:           log,
		registry:      NewRegistry(),
		rooms:         NewRooms(),
		mirror:        nopMirror{},
		mirrorTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes the room router.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// IsOnline reports whether userID has a live connection on this process.
func (h *Hub) IsOnline(userID string) bool { return h.registry.IsOnline(userID) }

// Connect registers the client, joins its personal room and announces presence when this is
// the user's first connection. Registration happens before any room join.
//
// Registry updates and presence announcements of one user run under that user's lock, so
// peers see user_connected and user_disconnected in the order the registry crossed zero.
func (h *Hub) Connect(ctx context.Context, c *Client) {
	if c == nil {
		return
	}
	unlock := h.presence.lock(c.UserID)
	defer unlock()

	online := h.registry.Register(c.UserID, c.ID)
	h.rooms.Attach(c)
	h.metrics.ConnectionOpened()

	h.log.Info("ws.connect", "user_id", c.UserID, "conn_id", c.ID, "first", online)
	if online {
		h.presenceChanged(ctx, c, true)
	}
}

// Disconnect removes the client from every room, deregisters it and announces the user
// offline when this was the last connection. Safe to call more than once.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	if c == nil {
		return
	}
	if h.rooms.Detach(c.ID) {
		h.metrics.ConnectionClosed()
	}
	unlock := h.presence.lock(c.UserID)
	defer unlock()

	offline := h.registry.Deregister(c.UserID, c.ID)

	h.log.Info("ws.disconnect", "user_id", c.UserID, "conn_id", c.ID, "last", offline)
	if offline {
		h.presenceChanged(ctx, c, false)
	}
}

// JoinRoom adds an attached connection to roomID.
func (h *Hub) JoinRoom(connID, roomID string) error {
	return h.rooms.Join(connID, roomID)
}

// LeaveRoom removes a connection from roomID (no-op when absent).
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.rooms.Leave(connID, roomID)
}

// EmitToRoom delivers event to every connection in roomID. It never blocks and never fails:
// a connection whose queue is full is skipped, logged and counted. It returns the number of
// connections the event was queued for.
func (h *Hub) EmitToRoom(roomID, event string, payload any) int {
	return h.EmitToRoomExcept(roomID, "", event, payload)
}

// EmitToRoomExcept is EmitToRoom skipping one connection (typically the sender).
func (h *Hub) EmitToRoomExcept(roomID, exceptConnID, event string, payload any) int {
	env, ok := h.envelope(event, payload)
	if !ok {
		return 0
	}

	room := h.rooms.Room(roomID)
	if room == nil {
		return 0
	}

	delivered, dropped := room.Broadcast(env, exceptConnID)
	h.recordDelivery(event, roomID, delivered, dropped)
	return delivered
}

// EmitToUser delivers event to every connection of userID through its personal room.
func (h *Hub) EmitToUser(userID, event string, payload any) int {
	return h.EmitToRoom(userID, event, payload)
}

// EmitToAllExcept delivers event to every attached connection except exceptConnID.
func (h *Hub) EmitToAllExcept(exceptConnID, event string, payload any) int {
	env, ok := h.envelope(event, payload)
	if !ok {
		return 0
	}

	var delivered, dropped int
	for _, c := range h.rooms.Clients() {
		if c.ID == exceptConnID {
			continue
		}
		if c.offer(env) {
			delivered++
		} else {
			dropped++
		}
	}
	h.recordDelivery(event, "*", delivered, dropped)
	return delivered
}

func (h *Hub) envelope(event string, payload any) (v1.Envelope, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("ws.emit.encode.fail", "event", event, "err", err)
		return v1.Envelope{}, false
	}
	return newEnvelope(event, raw, time.Now().UTC()), true
}

func (h *Hub) recordDelivery(event, roomID string, delivered, dropped int) {
	h.metrics.Delivery(event, delivered, dropped)
	if dropped > 0 {
		h.log.Warn("ws.emit.dropped", "event", event, "room_id", roomID, "delivered", delivered, "dropped", dropped)
	}
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      ids.New(),
		TS:      ts,
		Payload: payload,
	}
}
