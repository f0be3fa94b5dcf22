// Package main provides a CI-friendly WebSocket smoke test for layoo realtime.
//
// It validates:
//   - handshake + subprotocol selection
//   - session event on connect
//   - joinRoom for both participants of a fresh conversation
//   - HTTP send -> new_message fanout to the other participant
//   - idempotent dedupe by message id
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "layoo/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

// presence and typing events may interleave with anything we wait for.
var ambientTypes = map[string]struct{}{
	v1.TypeUserConnected:    {},
	v1.TypeUserDisconnected: {},
	v1.TypeTyping:           {},
}

type smokeClient struct {
	name      string
	userID    string
	conn      *websocket.Conn
	sessionID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:3000/ws", "WebSocket URL")
		apiURL  = flag.String("api", "http://127.0.0.1:3000", "HTTP API base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userA   = flag.String("a", "smoke-a", "User id for client A")
		userB   = flag.String("b", "smoke-b", "User id for client B")
		token   = flag.String("token", "dev", "Handshake token (a signed JWT when LAYOO_JWT_SECRET is set)")
		text    = flag.String("text", "hello layoo 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if err := validateOrigin(*apiURL); err != nil {
		fatalf("invalid -api: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *userA, *token, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *userB, *token, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.sessionID, b.sessionID, *origin)
	}

	convID := mustCreateConversation(root, *apiURL, a.userID, b.userID, *timeout)
	if *verbose {
		fmt.Printf("conversation: %s\n", convID)
	}

	mustJoin(root, a, convID, *timeout)
	mustJoin(root, b, convID, *timeout)

	msgID := fmt.Sprintf("smoke-%d", time.Now().UnixNano())

	dup := mustSend(root, *apiURL, convID, a.userID, msgID, *text, *timeout)
	if dup {
		fatalf("first send reported duplicate: id=%s", msgID)
	}

	mustAssertNew(root, b, convID, msgID, a.userID, *text, *timeout)

	_ = drainOptionalNew(root, a, 750*time.Millisecond)

	dup = mustSend(root, *apiURL, convID, a.userID, msgID, *text, *timeout)
	if !dup {
		fatalf("dedupe: resend of %s was not reported as duplicate", msgID)
	}

	mustAssertNoType(root, b, v1.TypeNewMessage, 1200*time.Millisecond)
	mustAssertNoType(root, a, v1.TypeNewMessage, 1200*time.Millisecond)

	fmt.Printf("OK: A=%s B=%s conversation=%s message=%s\n", a.sessionID, b.sessionID, convID, msgID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, userID, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse url (%s): %v", name, err)
	}
	q := u.Query()
	q.Set("userID", userID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:   name,
		userID: userID,
		conn:   conn,
		inbox:  make(chan v1.Envelope, 512),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()

	env := c.mustReadUntilType(parent, v1.TypeSession, stepTimeout, ambientTypes)

	var p v1.SessionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal session payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("session missing sessionID (%s)", name)
	}
	if p.UserID != userID {
		fatalf("session userID mismatch (%s): got=%q want=%q", name, p.UserID, userID)
	}
	c.sessionID = p.SessionID

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if env.V != v1.Version || strings.TrimSpace(env.Type) == "" {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: v=%q type=%q", env.V, env.Type):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustCreateConversation(parent context.Context, apiURL, userID, contactID string, stepTimeout time.Duration) string {
	var out struct {
		ConversationID string `json:"conversationID"`
	}
	status := mustPostJSON(parent, apiURL+"/api/conversations", map[string]string{
		"userID":    userID,
		"contactID": contactID,
	}, &out, stepTimeout)
	if status != http.StatusCreated {
		fatalf("create conversation: status=%d", status)
	}
	if strings.TrimSpace(out.ConversationID) == "" {
		fatalf("create conversation: missing conversationID")
	}
	return out.ConversationID
}

// mustJoin joins the room; the server does not acknowledge joinRoom, so any error event within
// a short window fails the run.
func mustJoin(parent context.Context, c *smokeClient, convID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeJoinRoom,
		ID:      fmt.Sprintf("%s-join", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.RoomPayload{ConversationID: convID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	mustAssertNoType(parent, c, v1.TypeError, 300*time.Millisecond)
}

func mustSend(parent context.Context, apiURL, convID, senderID, msgID, text string, stepTimeout time.Duration) (duplicate bool) {
	var out struct {
		MessageID string `json:"messageId"`
		Duplicate bool   `json:"duplicate"`
	}
	status := mustPostJSON(parent, apiURL+"/api/chat/send", map[string]string{
		"id":             msgID,
		"conversationID": convID,
		"senderID":       senderID,
		"type":           "text",
		"content":        text,
	}, &out, stepTimeout)
	if status != http.StatusOK {
		fatalf("send: status=%d", status)
	}
	if out.MessageID != msgID {
		fatalf("send messageId mismatch: got=%q want=%q", out.MessageID, msgID)
	}
	return out.Duplicate
}

func mustAssertNew(parent context.Context, c *smokeClient, convID, msgID, senderID, text string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeNewMessage, stepTimeout, ambientTypes)

	var p v1.NewMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal new_message payload (%s): %v", c.name, err)
	}

	if p.ConversationID != convID {
		fatalf("new_message conversation mismatch (%s): got=%q want=%q", c.name, p.ConversationID, convID)
	}
	if p.ID != msgID {
		fatalf("new_message id mismatch (%s): got=%q want=%q", c.name, p.ID, msgID)
	}
	if p.SenderID != senderID {
		fatalf("new_message sender mismatch (%s): got=%q want=%q", c.name, p.SenderID, senderID)
	}
	if p.Content != text {
		fatalf("new_message content mismatch (%s): got=%q want=%q", c.name, p.Content, text)
	}
	if p.CreatedAt.IsZero() {
		fatalf("new_message createdAt missing/zero (%s)", c.name)
	}
}

func drainOptionalNew(parent context.Context, c *smokeClient, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.errCh:
			if err != nil {
				return err
			}
			return errors.New("connection closed while draining")
		case env, ok := <-c.inbox:
			if !ok {
				return errors.New("connection closed while draining")
			}
			if env.Type == v1.TypeNewMessage {
				return nil
			}
		}
	}
}

func mustAssertNoType(parent context.Context, c *smokeClient, forbiddenType string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			fatalf("connection closed unexpectedly (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if env.Type == forbiddenType {
				fatalf("unexpected %s received (%s)", forbiddenType, c.name)
			}
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustPostJSON(parent context.Context, target string, body, out any, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(mustJSON(body)))
	if err != nil {
		fatalf("build request %s: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatalf("decode %s response: %v", target, err)
		}
	}
	return resp.StatusCode
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
