package realtime

import (
	"iter"
	"sync"
)

// Registry maps a user id to the set of live connection ids representing that user.
//
// A user is online while its set is non-empty. Register and Deregister report the
// zero-boundary transitions so the caller can announce presence exactly once per
// online period, regardless of how many devices come and go in between.
type Registry struct {
	mu    sync.Mutex
	users map[string]map[string]struct{}
	conns int
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]struct{})}
}

// Register adds connID to userID's set. It returns true when this is the user's first
// live connection (0 -> 1).
func (r *Registry) Register(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]struct{}, 1)
		r.users[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}
	r.conns++
	return !ok
}

// Deregister removes connID from userID's set. It returns true when the user's last live
// connection was removed (1 -> 0). Unknown connections are a no-op.
func (r *Registry) Deregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	r.conns--

	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// ConnectionsFor yields the live connection ids of userID.
// Each range over the sequence takes a fresh snapshot, so it can be restarted and never
// holds the registry lock while the caller runs.
func (r *Registry) ConnectionsFor(userID string) iter.Seq[string] {
	return func(yield func(string) bool) {
		r.mu.Lock()
		set := r.users[userID]
		snap := make([]string, 0, len(set))
		for id := range set {
			snap = append(snap, id)
		}
		r.mu.Unlock()

		for _, id := range snap {
			if !yield(id) {
				return
			}
		}
	}
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID]) > 0
}

// OnlineUsers returns the number of users with at least one live connection.
func (r *Registry) OnlineUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// Connections returns the total number of live connections.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns
}
