package realtime

import (
	"context"
	"sync"
	"time"

	v1 "layoo/contracts/realtime/v1"
)

// PresenceMirror records presence transitions outside the process so other instances and
// HTTP readers can see last-seen times. The in-process Registry stays authoritative for
// routing.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
	Lookup(ctx context.Context, userID string) (PresenceRecord, bool, error)
}

// PresenceRecord is the mirrored state of one user.
type PresenceRecord struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceStatus is what GET /api/presence/{userID} returns.
type PresenceStatus struct {
	UserID      string     `json:"userID"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

type nopMirror struct{}

func (nopMirror) SetOnline(context.Context, string, time.Time) error  { return nil }
func (nopMirror) SetOffline(context.Context, string, time.Time) error { return nil }
func (nopMirror) Lookup(context.Context, string) (PresenceRecord, bool, error) {
	return PresenceRecord{}, false, nil
}

// userLocks hands out one mutex per user id. Entries are dropped when nobody holds or waits
// for them.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*userLock)
	}
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

// presenceChanged announces a zero-boundary transition of c.UserID to every other connection
// and mirrors it. Mirror failures are logged only. Callers hold the user's presence lock, so a
// slow mirror delays only that user's next transition, for at most mirrorTimeout.
func (h *Hub) presenceChanged(ctx context.Context, c *Client, online bool) {
	event := v1.TypeUserDisconnected
	if online {
		event = v1.TypeUserConnected
	}

	h.metrics.Presence(online)
	h.EmitToAllExcept(c.ID, event, v1.PresencePayload{UserID: c.UserID})

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.mirrorTimeout)
	defer cancel()

	now := time.Now().UTC()
	var err error
	if online {
		err = h.mirror.SetOnline(mctx, c.UserID, now)
	} else {
		err = h.mirror.SetOffline(mctx, c.UserID, now)
	}
	if err != nil {
		h.log.Warn("presence.mirror.fail", "user_id", c.UserID, "online", online, "err", err)
	}
}

// Presence reports the presence of userID. Local connections win; the mirror supplies
// last-seen and users connected to other instances.
func (h *Hub) Presence(ctx context.Context, userID string) (PresenceStatus, error) {
	st := PresenceStatus{UserID: userID}
	for range h.registry.ConnectionsFor(userID) {
		st.Connections++
	}
	st.Online = st.Connections > 0

	rec, ok, err := h.mirror.Lookup(ctx, userID)
	if err != nil {
		return st, err
	}
	if ok {
		if rec.Status == presenceOnline {
			st.Online = true
		}
		if !rec.LastSeen.IsZero() {
			ls := rec.LastSeen
			st.LastSeen = &ls
		}
	}
	return st, nil
}
