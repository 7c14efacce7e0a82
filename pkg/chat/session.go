package chat

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/gateway"
)

// Session is the chat state a view mounts: one active room, its messages and
// the health of its feed, acting as a single identity. Create one per chat view
// and Close it when the view goes away.
type Session struct {
	gw      gateway.Gateway
	profile core.Profile
	store   *Store
	tracker *Tracker
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	roomID string
}

type SessionOption func(*Session)

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

func NewSession(gw gateway.Gateway, profile core.Profile, opts ...SessionOption) *Session {
	s := &Session{
		gw:      gw,
		profile: profile,
		logger:  slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = NewStore(gw, WithStoreLogger(s.logger))
	s.tracker = NewTracker(gw, WithTrackerLogger(s.logger))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Session) Profile() core.Profile {
	return s.profile
}

func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) Messages() []Entry {
	return s.store.Messages()
}

func (s *Session) Status() ConnectionStatus {
	return s.tracker.Status()
}

func (s *Session) OnChange(f func()) {
	s.store.OnChange(f)
}

func (s *Session) OnStatusChange(f func(ConnectionStatus)) {
	s.tracker.OnStatusChange(f)
}

func (s *Session) onInsert(roomID string) func(string) {
	return func(messageID string) {
		s.store.OnRemoteInsert(s.ctx, messageID, roomID)
	}
}

// SelectRoom makes roomID the active room. The feed is armed before the history is
// fetched and inserts arriving in between are applied once the history is in.
// A feed failure leaves the session Disconnected but still loads the history.
func (s *Session) SelectRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()

	s.store.Activate(roomID)
	subErr := s.tracker.Arm(ctx, roomID, s.onInsert(roomID))
	loadErr := s.store.LoadRoom(ctx, roomID)
	return errors.Join(loadErr, subErr)
}

// SendMessage sends content to the active room as the session's identity.
func (s *Session) SendMessage(ctx context.Context, content string) SendResult {
	roomID := s.RoomID()
	if roomID == "" {
		return SendResult{Status: Failed, Err: ErrNoActiveRoom}
	}
	return s.store.Send(ctx, roomID, s.profile.ID, content)
}

func (s *Session) Retry(ctx context.Context, tempID string) SendResult {
	return s.store.Retry(ctx, tempID)
}

func (s *Session) Discard(tempID string) error {
	return s.store.Discard(tempID)
}

// Reconnect re-arms the active room's feed and refetches its history to cover
// inserts missed while disconnected.
func (s *Session) Reconnect(ctx context.Context) error {
	roomID := s.RoomID()
	if roomID == "" {
		return ErrNoActiveRoom
	}
	if err := s.tracker.Reconnect(ctx, roomID); err != nil {
		return err
	}
	return s.store.LoadRoom(ctx, roomID)
}

func (s *Session) Rooms(ctx context.Context) ([]core.ChatRoom, error) {
	return s.gw.ListRooms(ctx)
}

func (s *Session) CreateRoom(ctx context.Context, input core.RoomCreateInput) (*core.ChatRoom, error) {
	return s.gw.CreateRoom(ctx, input)
}

func (s *Session) CourseRooms(ctx context.Context, courseID string) ([]core.ChatRoom, error) {
	return s.gw.CourseRooms(ctx, courseID)
}

func (s *Session) Close() {
	s.tracker.Close()
	s.cancel()
}
