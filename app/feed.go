package coursechat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/router"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Subscribers only send control frames.
	maxMessageSize = 512
)

// FeedHandler streams a room's inserts over a websocket.
type FeedHandler struct {
	context   context.Context
	wg        *sync.WaitGroup
	chatStore core.ChatStore
	feed      core.Feed
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

func NewFeedHandler(ctx context.Context, wg *sync.WaitGroup, chatStore core.ChatStore, feed core.Feed,
	allowedOrigins []string, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		context:   ctx,
		wg:        wg,
		chatStore: chatStore,
		feed:      feed,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// FeedHandler subscribes before upgrading so every insert committed after the
// subscribed frame is delivered.
func (h *FeedHandler) FeedHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := r.PathValue("roomID")
	room, err := h.chatStore.GetRoomByID(r.Context(), roomID)
	if err != nil {
		return fmt.Errorf("GetRoomByID: %w", err)
	}
	if room == nil {
		return router.NotFound("room not found")
	}

	events, cancel, err := h.feed.Subscribe(h.context, roomID)
	if err != nil {
		return fmt.Errorf("Subscribe: %w", err)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		cancel()
		h.logger.Error(fmt.Sprintf("upgrade: %v", err), slog.String("room_id", roomID))
		return nil
	}

	session := core.SessionFromRequest(r)
	c := &feedConn{
		conn:    conn,
		context: h.context,
		roomID:  roomID,
		events:  events,
		cancel:  cancel,
		logger:  h.logger.With(slog.String("room_id", roomID), slog.String("user_id", session.UserID)),
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer h.wg.Done()
		c.writeLoop()
	}()
	return nil
}

type feedConn struct {
	conn    *websocket.Conn
	context context.Context
	roomID  string
	events  <-chan core.InsertEvent
	cancel  func()
	logger  *slog.Logger
}

// readLoop only watches for the peer going away; it ends the subscription when it does.
func (c *feedConn) readLoop() {
	defer c.cancel()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			c.logger.Info(fmt.Sprintf("read: %v", err))
			return
		}
	}
}

func (c *feedConn) writeEvent(t string, payload any) error {
	e, err := core.NewEvent(t, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("NextWriter: %w", err)
	}
	if err := core.EncodeEvent(w, e); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *feedConn) writeClose(code int) {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
}

func (c *feedConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	if err := c.writeEvent(core.SubscribedEvent, core.SubscribedPayload{RoomID: c.roomID}); err != nil {
		c.logger.Error(fmt.Sprintf("ack: %v", err))
		return
	}

	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				// the feed dropped us or the peer went away
				c.writeClose(websocket.CloseGoingAway)
				return
			}
			if err := c.writeEvent(core.InsertEventType, e); err != nil {
				c.logger.Error(err.Error())
				return
			}
		case <-c.context.Done():
			c.writeClose(websocket.CloseGoingAway)
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
