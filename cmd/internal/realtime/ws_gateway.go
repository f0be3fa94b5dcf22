package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"layoo/cmd/internal/ids"
	v1 "layoo/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// WSGateway is the WebSocket entrypoint for layoo realtime.
//
// It verifies the handshake, enforces origin policy, subprotocol selection, rate limits and
// heartbeats, and dispatches validated envelopes to named event handlers.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	verifier TokenVerifier
	members  ParticipantChecker

	cfg            GatewayConfig
	originPatterns []string
}

// GatewayOption configures a WSGateway.
type GatewayOption func(*WSGateway)

// WithParticipantChecker sets the checker consulted by joinRoom when
// GatewayConfig.RequireParticipant is on.
func WithParticipantChecker(pc ParticipantChecker) GatewayOption {
	return func(g *WSGateway) { g.members = pc }
}

// NewWSGateway constructs a gateway. A nil hub gets a fresh one; a nil verifier falls back to
// PresenceTokenVerifier.
func NewWSGateway(log *slog.Logger, hub *Hub, verifier TokenVerifier, cfg GatewayConfig, opts ...GatewayOption) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}
	if verifier == nil {
		verifier = PresenceTokenVerifier{}
	}

	cfg = cfg.normalized()
	g := &WSGateway{
		log:            log,
		hub:            hub,
		verifier:       verifier,
		cfg:            cfg,
		originPatterns: cfg.originPatterns(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS verifies the handshake, upgrades the request and runs the realtime loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	userID, token := handshakeCredentials(r)
	if err := g.verifier.Verify(r.Context(), userID, token); err != nil {
		g.log.Warn("ws.reject.auth", "user_id", userID, "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID := ids.New()
	client := NewClient(userID, connID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Broadcast safety: the client leaves every room before client.Close.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Disconnect(ctx, client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.hub.Connect(ctx, client)

	ack, _ := json.Marshal(v1.SessionPayload{SessionID: connID, UserID: userID})
	_ = g.enqueue(ctx, client, newEnvelope(v1.TypeSession, ack, time.Now().UTC()))

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		var herr error
		switch env.Type {
		case v1.TypeJoinRoom:
			herr = g.onJoinRoom(ctx, client, env)
		case v1.TypeLeaveRoom:
			herr = g.onLeaveRoom(client, env)
		case v1.TypeTyping:
			herr = g.onTyping(client, env)
		case v1.TypeMessageReadRequest:
			herr = g.onMessageRead(env, now)
		case v1.TypeMessageDeliveredRequest:
			herr = g.onMessageDelivered(env, now)
		default:
			herr = fmt.Errorf("unsupported type: %s", env.Type)
		}
		if herr != nil {
			g.trySendError(ctx, client, errorCode(env.Type, herr), herr.Error())
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// handshakeCredentials reads userID and token from the query string, falling back to an
// Authorization bearer header for the token.
func handshakeCredentials(r *http.Request) (userID, token string) {
	q := r.URL.Query()
	userID = strings.TrimSpace(q.Get("userID"))
	token = strings.TrimSpace(q.Get("token"))
	if token == "" {
		h := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			token = strings.TrimSpace(h[7:])
		}
	}
	return userID, token
}

var (
	errForbiddenRoom = errors.New("not a participant of conversation")
	errMissingRoom   = errors.New("missing conversation id")
)

func errorCode(typ string, err error) string {
	switch {
	case errors.Is(err, errForbiddenRoom):
		return "forbidden"
	case errors.Is(err, errMissingRoom):
		return "bad_payload"
	}
	return typ + "_failed"
}

// ---- handlers ----

func (g *WSGateway) onJoinRoom(ctx context.Context, client *Client, env v1.Envelope) error {
	roomID, err := decodeRoom(env.Payload)
	if err != nil {
		return err
	}

	if g.cfg.RequireParticipant && g.members != nil && roomID != client.UserID {
		ok, err := g.members.IsParticipant(ctx, client.UserID, roomID)
		if err != nil {
			g.log.Error("ws.join.check.fail", "conn_id", client.ID, "room_id", roomID, "err", err)
			return errors.New("participant check failed")
		}
		if !ok {
			return errForbiddenRoom
		}
	}

	if err := g.hub.JoinRoom(client.ID, roomID); err != nil {
		return err
	}
	g.log.Debug("ws.room.join", "conn_id", client.ID, "user_id", client.UserID, "room_id", roomID)
	return nil
}

func (g *WSGateway) onLeaveRoom(client *Client, env v1.Envelope) error {
	roomID, err := decodeRoom(env.Payload)
	if err != nil {
		return err
	}
	// The personal room is left only on disconnect.
	if roomID == client.UserID {
		return nil
	}
	g.hub.LeaveRoom(client.ID, roomID)
	g.log.Debug("ws.room.leave", "conn_id", client.ID, "user_id", client.UserID, "room_id", roomID)
	return nil
}

func (g *WSGateway) onTyping(client *Client, env v1.Envelope) error {
	var p v1.TypingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	p.ConversationID = strings.TrimSpace(p.ConversationID)
	if p.ConversationID == "" {
		return errMissingRoom
	}
	if p.UserID == "" {
		p.UserID = client.UserID
	}
	g.hub.EmitToRoomExcept(p.ConversationID, client.ID, v1.TypeTyping, p)
	return nil
}

func (g *WSGateway) onMessageRead(env v1.Envelope, now time.Time) error {
	var p v1.MessageReadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	p.ConversationID = strings.TrimSpace(p.ConversationID)
	if p.ConversationID == "" {
		return errMissingRoom
	}
	p.ReadAt = &now
	g.hub.EmitToRoom(p.ConversationID, v1.TypeMessageRead, p)
	return nil
}

func (g *WSGateway) onMessageDelivered(env v1.Envelope, now time.Time) error {
	var p v1.MessageDeliveredPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	p.ConversationID = strings.TrimSpace(p.ConversationID)
	if p.ConversationID == "" {
		return errMissingRoom
	}
	p.DeliveredAt = &now
	g.hub.EmitToRoom(p.ConversationID, v1.TypeMessageDelivered, p)
	return nil
}

func decodeRoom(raw json.RawMessage) (string, error) {
	var p v1.RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	if p.ConversationID == "" {
		return "", errMissingRoom
	}
	if len(p.ConversationID) > maxRoomIDLen {
		return "", fmt.Errorf("conversation id too long: max=%d", maxRoomIDLen)
	}
	return p.ConversationID, nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	return client.offer(env)
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return "bad json: " + e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
