package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/router"
)

const (
	// Time allowed to write a control frame to the feed.
	writeWait = 10 * time.Second
	// Time allowed between server pings before the feed is considered dead.
	pongWait = 60 * time.Second
	// Time allowed for the backend to acknowledge a subscription.
	ackWait = 10 * time.Second
)

// HTTPGateway talks to the chat backend over its JSON API and websocket feed.
type HTTPGateway struct {
	baseURL *url.URL
	client  *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

type HTTPOption func(*HTTPGateway)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		g.client = client
	}
}

func WithDialer(dialer *websocket.Dialer) HTTPOption {
	return func(g *HTTPGateway) {
		g.dialer = dialer
	}
}

func WithToken(token string) HTTPOption {
	return func(g *HTTPGateway) {
		g.token = token
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

func NewHTTPGateway(baseURL string, opts ...HTTPOption) (*HTTPGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("url.Parse: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	g := &HTTPGateway{
		baseURL: u,
		client:  &http.Client{Timeout: 30 * time.Second},
		dialer:  websocket.DefaultDialer,
		logger:  slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *HTTPGateway) SetToken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.token = token
}

func (g *HTTPGateway) header() http.Header {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h := http.Header{}
	if g.token != "" {
		h.Set("Authorization", "Bearer "+g.token)
	}
	return h
}

func statusError(op string, code int, message string) *RemoteError {
	if message == "" {
		message = http.StatusText(code)
	}
	re := &RemoteError{Op: op, StatusCode: code, Message: message}
	switch {
	case code == http.StatusNotFound:
		re.Err = ErrNotFound
	case code == http.StatusUnauthorized:
		re.Err = ErrUnauthorized
	case code == http.StatusForbidden:
		re.Err = ErrForbidden
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		re.Err = ErrBadRequest
	}
	return re
}

func decodeError(op string, res *http.Response) *RemoteError {
	var apiErr router.JsonError
	b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err := json.Unmarshal(b, &apiErr); err != nil {
		apiErr.Err = string(bytes.TrimSpace(b))
	}
	return statusError(op, res.StatusCode, apiErr.Err)
}

func (g *HTTPGateway) do(ctx context.Context, op, method string, path []string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return remoteError(op, fmt.Errorf("json.Marshal: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL.JoinPath(path...).String(), body)
	if err != nil {
		return remoteError(op, err)
	}
	req.Header = g.header()
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := g.client.Do(req)
	if err != nil {
		return remoteError(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusMultipleChoices {
		return decodeError(op, res)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return remoteError(op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

type SigninPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges credentials for a session and uses its token for subsequent calls.
func (g *HTTPGateway) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	var session core.Session
	err := g.do(ctx, "SignIn", http.MethodPost, []string{"api", "auth", "signin"},
		SigninPayload{Email: email, Password: password}, &session)
	if err != nil {
		return nil, err
	}
	g.SetToken(session.Token)
	return &session, nil
}

func (g *HTTPGateway) FetchHistory(ctx context.Context, roomID string) ([]core.ChatMessage, error) {
	messages := make([]core.ChatMessage, 0)
	if err := g.do(ctx, "FetchHistory", http.MethodGet,
		[]string{"api", "rooms", roomID, "messages"}, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (g *HTTPGateway) FetchMessage(ctx context.Context, messageID string) (*core.ChatMessage, error) {
	var m core.ChatMessage
	if err := g.do(ctx, "FetchMessage", http.MethodGet,
		[]string{"api", "messages", messageID}, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

type InsertMessagePayload struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

func (g *HTTPGateway) InsertMessage(ctx context.Context, roomID, authorID, content string) (*core.ChatMessage, error) {
	var m core.ChatMessage
	if err := g.do(ctx, "InsertMessage", http.MethodPost, []string{"api", "rooms", roomID, "messages"},
		InsertMessagePayload{Content: content, UserID: authorID}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (g *HTTPGateway) TouchRoom(ctx context.Context, roomID string) error {
	return g.do(ctx, "TouchRoom", http.MethodPatch, []string{"api", "rooms", roomID}, nil, nil)
}

func (g *HTTPGateway) ListRooms(ctx context.Context) ([]core.ChatRoom, error) {
	rooms := make([]core.ChatRoom, 0)
	if err := g.do(ctx, "ListRooms", http.MethodGet, []string{"api", "rooms"}, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (g *HTTPGateway) CreateRoom(ctx context.Context, input core.RoomCreateInput) (*core.ChatRoom, error) {
	var room core.ChatRoom
	if err := g.do(ctx, "CreateRoom", http.MethodPost, []string{"api", "rooms"}, input, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (g *HTTPGateway) CourseRooms(ctx context.Context, courseID string) ([]core.ChatRoom, error) {
	rooms := make([]core.ChatRoom, 0)
	if err := g.do(ctx, "CourseRooms", http.MethodGet,
		[]string{"api", "courses", courseID, "rooms"}, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (g *HTTPGateway) Me(ctx context.Context) (*core.Profile, error) {
	var user core.UserWithoutSecrets
	if err := g.do(ctx, "Me", http.MethodGet, []string{"api", "users", "me"}, nil, &user); err != nil {
		return nil, err
	}
	p := user.Profile()
	return &p, nil
}

func (g *HTTPGateway) feedURL(roomID string) string {
	u := g.baseURL.JoinPath("api", "rooms", roomID, "feed")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (g *HTTPGateway) SubscribeToRoomInserts(ctx context.Context, roomID string, onInsert func(messageID string)) (Subscription, error) {
	const op = "SubscribeToRoomInserts"

	conn, res, err := g.dialer.DialContext(ctx, g.feedURL(roomID), g.header())
	if err != nil {
		if res != nil {
			defer res.Body.Close()
			return nil, decodeError(op, res)
		}
		return nil, remoteError(op, err)
	}

	if err := awaitAck(ctx, conn, roomID); err != nil {
		conn.Close()
		return nil, remoteError(op, err)
	}

	sub := newSubscription(func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	})
	go g.readLoop(conn, sub, roomID, onInsert)

	g.logger.Debug("room feed subscribed", slog.String("room_id", roomID))
	return sub, nil
}

// awaitAck blocks until the backend confirms the subscription with a SubscribedEvent.
func awaitAck(ctx context.Context, conn *websocket.Conn, roomID string) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	deadline := time.Now().Add(ackWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	_, r, err := conn.NextReader()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("awaiting ack: %w", err)
	}

	var e core.Event
	if err := core.DecodeEvent(r, &e); err != nil {
		return err
	}
	if e.Type != core.SubscribedEvent {
		return fmt.Errorf("unexpected frame %q before ack", e.Type)
	}
	var ack core.SubscribedPayload
	if err := json.Unmarshal(e.Payload, &ack); err != nil {
		return fmt.Errorf("decode ack: %w", err)
	}
	if ack.RoomID != roomID {
		return fmt.Errorf("ack for room %q, want %q", ack.RoomID, roomID)
	}
	return nil
}

func (g *HTTPGateway) readLoop(conn *websocket.Conn, sub *subscription, roomID string, onInsert func(string)) {
	logger := g.logger.With(slog.String("room_id", roomID))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		format, r, err := conn.NextReader()
		if err != nil {
			if sub.active() {
				logger.Error(fmt.Sprintf("room feed dropped: %v", err))
			}
			conn.Close()
			sub.finish(fmt.Errorf("%w: %w", ErrFeedDropped, err))
			return
		}

		if format != websocket.TextMessage {
			logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var e core.Event
		if err := core.DecodeEvent(r, &e); err != nil {
			logger.Error(err.Error())
			continue
		}

		switch e.Type {
		case core.InsertEventType:
			var ie core.InsertEvent
			if err := json.Unmarshal(e.Payload, &ie); err != nil {
				logger.Error(fmt.Sprintf("decode insert: %v", err))
				continue
			}
			if sub.active() {
				onInsert(ie.MessageID)
			}
		default:
			logger.Debug(e.String())
		}
	}
}
