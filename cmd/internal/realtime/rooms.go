package realtime

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownConnection is returned when a room operation names a connection that is not attached.
var ErrUnknownConnection = errors.New("realtime: unknown connection")

// Rooms routes connections into rooms.
//
// Every attached connection is a member of exactly one personal room (its user id) plus any
// number of conversation rooms. Membership here is purely for fan-out and says nothing about
// persisted conversation participants.
type Rooms struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[string]*Client
	joined  map[string]map[string]struct{} // conn id -> room ids
}

// NewRooms constructs an empty router.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:   make(map[string]*Room),
		clients: make(map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Attach registers the connection handle and joins its personal room.
func (r *Rooms) Attach(c *Client) {
	if c == nil || c.ID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.ID] = c
	if _, ok := r.joined[c.ID]; !ok {
		r.joined[c.ID] = make(map[string]struct{})
	}
	if c.UserID != "" {
		r.joinLocked(c, c.UserID)
	}
}

// Detach removes the connection from every room it joined and forgets the handle.
// It reports whether the connection was attached.
func (r *Rooms) Detach(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[connID]; !ok {
		return false
	}
	for roomID := range r.joined[connID] {
		r.leaveLocked(connID, roomID)
	}
	delete(r.joined, connID)
	delete(r.clients, connID)
	return true
}

// Join associates an attached connection with roomID.
func (r *Rooms) Join(connID, roomID string) error {
	if roomID == "" {
		return errors.New("realtime: empty room id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	r.joinLocked(c, roomID)
	return nil
}

// Leave removes the association; it is a no-op when absent.
func (r *Rooms) Leave(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, roomID)
}

// Members returns the connection ids currently in roomID, sorted for stable output.
func (r *Rooms) Members(roomID string) []string {
	r.mu.RLock()
	room := r.rooms[roomID]
	r.mu.RUnlock()

	out := room.Members()
	sort.Strings(out)
	return out
}

// JoinedRooms returns the room ids a connection belongs to, sorted.
func (r *Rooms) JoinedRooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[connID]))
	for id := range r.joined[connID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Room returns the room handle or nil when nobody is in it.
func (r *Rooms) Room(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// Clients returns a snapshot of every attached connection.
func (r *Rooms) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Rooms) joinLocked(c *Client, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		r.rooms[roomID] = room
	}
	room.Join(c)
	r.joined[c.ID][roomID] = struct{}{}
}

func (r *Rooms) leaveLocked(connID, roomID string) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	room.Leave(connID)
	if room.Len() == 0 {
		delete(r.rooms, roomID)
	}
	if set, ok := r.joined[connID]; ok {
		delete(set, roomID)
	}
}
