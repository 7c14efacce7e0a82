package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/putto11262002/coursechat/core"
)

// LocalGateway serves the chat layer straight from the backend stores, without a network hop.
type LocalGateway struct {
	chats  core.ChatStore
	users  core.UserStore
	feed   core.Feed
	userID string
	logger *slog.Logger
}

type LocalOption func(*LocalGateway)

func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(g *LocalGateway) {
		g.logger = logger
	}
}

// NewLocalGateway returns a gateway acting as the user with the given id.
func NewLocalGateway(chats core.ChatStore, users core.UserStore, feed core.Feed, userID string, opts ...LocalOption) *LocalGateway {
	g := &LocalGateway{
		chats:  chats,
		users:  users,
		feed:   feed,
		userID: userID,
		logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// localError classifies store errors the way the HTTP backend reports them.
func localError(op string, err error) error {
	if err == nil {
		return nil
	}
	re := &RemoteError{Op: op, Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, core.ErrInvalidRoom), errors.Is(err, core.ErrInvalidCourse):
		re.Err = fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, core.ErrInvalidMessage), errors.Is(err, core.ErrInvalidUser):
		re.Err = fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return re
}

func (g *LocalGateway) FetchHistory(ctx context.Context, roomID string) ([]core.ChatMessage, error) {
	room, err := g.chats.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, localError("FetchHistory", err)
	}
	if room == nil {
		return nil, localError("FetchHistory", core.ErrInvalidRoom)
	}
	messages, err := g.chats.GetRoomMessages(ctx, roomID)
	if err != nil {
		return nil, localError("FetchHistory", err)
	}
	return messages, nil
}

func (g *LocalGateway) FetchMessage(ctx context.Context, messageID string) (*core.ChatMessage, error) {
	m, err := g.chats.GetMessage(ctx, messageID)
	if err != nil {
		return nil, localError("FetchMessage", err)
	}
	if m == nil {
		return nil, &RemoteError{Op: "FetchMessage", Message: "message not found", Err: ErrNotFound}
	}
	return m, nil
}

func (g *LocalGateway) InsertMessage(ctx context.Context, roomID, authorID, content string) (*core.ChatMessage, error) {
	if authorID != g.userID {
		return nil, &RemoteError{Op: "InsertMessage", Message: "cannot post as another user", Err: ErrForbidden}
	}
	m, err := g.chats.InsertMessage(ctx, core.MessageCreateInput{
		Content: content,
		UserID:  authorID,
		RoomID:  roomID,
	})
	if err != nil {
		return nil, localError("InsertMessage", err)
	}
	return m, nil
}

func (g *LocalGateway) TouchRoom(ctx context.Context, roomID string) error {
	return localError("TouchRoom", g.chats.TouchRoom(ctx, roomID))
}

func (g *LocalGateway) SubscribeToRoomInserts(ctx context.Context, roomID string, onInsert func(messageID string)) (Subscription, error) {
	room, err := g.chats.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, localError("SubscribeToRoomInserts", err)
	}
	if room == nil {
		return nil, localError("SubscribeToRoomInserts", core.ErrInvalidRoom)
	}

	events, cancel, err := g.feed.Subscribe(context.WithoutCancel(ctx), roomID)
	if err != nil {
		return nil, localError("SubscribeToRoomInserts", err)
	}

	sub := newSubscription(cancel)
	go func() {
		for e := range events {
			if !sub.active() {
				continue
			}
			onInsert(e.MessageID)
		}
		sub.finish(nil)
		g.logger.Debug("room feed ended", slog.String("room_id", roomID))
	}()
	return sub, nil
}

func (g *LocalGateway) ListRooms(ctx context.Context) ([]core.ChatRoom, error) {
	rooms, err := g.chats.ListRooms(ctx)
	if err != nil {
		return nil, localError("ListRooms", err)
	}
	return rooms, nil
}

func (g *LocalGateway) CreateRoom(ctx context.Context, input core.RoomCreateInput) (*core.ChatRoom, error) {
	room, err := g.chats.CreateRoom(ctx, input)
	if err != nil {
		return nil, localError("CreateRoom", err)
	}
	return room, nil
}

func (g *LocalGateway) CourseRooms(ctx context.Context, courseID string) ([]core.ChatRoom, error) {
	rooms, err := g.chats.CourseRooms(ctx, courseID)
	if err != nil {
		return nil, localError("CourseRooms", err)
	}
	return rooms, nil
}

func (g *LocalGateway) Me(ctx context.Context) (*core.Profile, error) {
	user, err := g.users.GetUserByID(ctx, g.userID)
	if err != nil {
		return nil, localError("Me", err)
	}
	if user == nil {
		return nil, localError("Me", core.ErrInvalidUser)
	}
	p := user.Profile()
	return &p, nil
}
