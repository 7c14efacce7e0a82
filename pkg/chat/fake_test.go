package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/gateway"
)

var (
	t0      = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	authors = map[string]*core.Author{
		"u1": {FullName: "Ada Lovelace"},
		"u2": {FullName: "Grace Hopper", AvatarURL: "https://cdn.example.com/grace.png"},
	}
)

func msg(id, roomID, userID string, at time.Duration) core.ChatMessage {
	return core.ChatMessage{
		ID:        id,
		Content:   "content of " + id,
		RoomID:    roomID,
		UserID:    userID,
		CreatedAt: t0.Add(at),
		UpdatedAt: t0.Add(at),
		User:      authors[userID],
	}
}

type fakeSubscription struct {
	roomID   string
	onInsert func(string)
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *fakeSubscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *fakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// drop ends the subscription as if the backend went away.
func (s *fakeSubscription) drop() {
	s.mu.Lock()
	s.err = gateway.ErrFeedDropped
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

// fakeGateway is an in-memory backend. Every call is recorded in calls.
type fakeGateway struct {
	mu           sync.Mutex
	history      map[string][]core.ChatMessage
	messages     map[string]core.ChatMessage
	rooms        []core.ChatRoom
	historyErr   error
	insertErr    error
	touchErr     error
	subscribeErr error
	fetchErr     error
	subs         []*fakeSubscription
	calls        []string
	nextID       int

	// hooks run without the lock held
	onFetchHistory func(roomID string)
	onInsert       func(m core.ChatMessage)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		history:  make(map[string][]core.ChatMessage),
		messages: make(map[string]core.ChatMessage),
	}
}

// seed stores messages as persisted history of their rooms.
func (g *fakeGateway) seed(messages ...core.ChatMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range messages {
		g.history[m.RoomID] = append(g.history[m.RoomID], m)
		g.messages[m.ID] = m
	}
}

// persist stores a message that is fetchable by id but not part of any fetched history yet.
func (g *fakeGateway) persist(m core.ChatMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[m.ID] = m
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) set(f func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f(g)
}

// emit delivers an insert to every open subscription of the room.
func (g *fakeGateway) emit(roomID, messageID string) {
	g.mu.Lock()
	subs := append([]*fakeSubscription(nil), g.subs...)
	g.mu.Unlock()
	for _, s := range subs {
		if s.roomID == roomID && !s.isClosed() {
			s.onInsert(messageID)
		}
	}
}

func (g *fakeGateway) openSubs(roomID string) []*fakeSubscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	var open []*fakeSubscription
	for _, s := range g.subs {
		if s.roomID == roomID && !s.isClosed() {
			open = append(open, s)
		}
	}
	return open
}

func (g *fakeGateway) lastSub() *fakeSubscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.subs) == 0 {
		return nil
	}
	return g.subs[len(g.subs)-1]
}

func (g *fakeGateway) FetchHistory(ctx context.Context, roomID string) ([]core.ChatMessage, error) {
	g.record("FetchHistory:" + roomID)
	g.mu.Lock()
	hook := g.onFetchHistory
	g.mu.Unlock()
	if hook != nil {
		hook(roomID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.historyErr != nil {
		return nil, &gateway.RemoteError{Op: "FetchHistory", StatusCode: 500, Message: g.historyErr.Error(), Err: g.historyErr}
	}
	return append(make([]core.ChatMessage, 0), g.history[roomID]...), nil
}

func (g *fakeGateway) FetchMessage(ctx context.Context, messageID string) (*core.ChatMessage, error) {
	g.record("FetchMessage:" + messageID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, &gateway.RemoteError{Op: "FetchMessage", Message: g.fetchErr.Error(), Err: g.fetchErr}
	}
	m, ok := g.messages[messageID]
	if !ok {
		return nil, &gateway.RemoteError{Op: "FetchMessage", StatusCode: 404, Err: gateway.ErrNotFound}
	}
	return &m, nil
}

func (g *fakeGateway) InsertMessage(ctx context.Context, roomID, authorID, content string) (*core.ChatMessage, error) {
	g.record("InsertMessage:" + roomID)
	g.mu.Lock()
	if g.insertErr != nil {
		err := g.insertErr
		g.mu.Unlock()
		return nil, &gateway.RemoteError{Op: "InsertMessage", StatusCode: 500, Message: err.Error(), Err: err}
	}
	g.nextID++
	m := msg(fmt.Sprintf("new-%d", g.nextID), roomID, authorID, time.Hour+time.Duration(g.nextID)*time.Second)
	m.Content = content
	g.history[roomID] = append(g.history[roomID], m)
	g.messages[m.ID] = m
	hook := g.onInsert
	g.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return &m, nil
}

func (g *fakeGateway) TouchRoom(ctx context.Context, roomID string) error {
	g.record("TouchRoom:" + roomID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.touchErr != nil {
		return &gateway.RemoteError{Op: "TouchRoom", Message: g.touchErr.Error(), Err: g.touchErr}
	}
	return nil
}

func (g *fakeGateway) SubscribeToRoomInserts(ctx context.Context, roomID string, onInsert func(string)) (gateway.Subscription, error) {
	g.record("Subscribe:" + roomID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subscribeErr != nil {
		return nil, &gateway.RemoteError{Op: "SubscribeToRoomInserts", Message: g.subscribeErr.Error(), Err: g.subscribeErr}
	}
	s := &fakeSubscription{roomID: roomID, onInsert: onInsert, done: make(chan struct{})}
	g.subs = append(g.subs, s)
	return s, nil
}

func (g *fakeGateway) ListRooms(ctx context.Context) ([]core.ChatRoom, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.ChatRoom(nil), g.rooms...), nil
}

func (g *fakeGateway) CreateRoom(ctx context.Context, input core.RoomCreateInput) (*core.ChatRoom, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room := core.ChatRoom{
		ID:        fmt.Sprintf("room-%d", len(g.rooms)+1),
		Name:      input.Name,
		CourseID:  input.CourseID,
		IsPrivate: input.IsPrivate,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	g.rooms = append([]core.ChatRoom{room}, g.rooms...)
	return &room, nil
}

func (g *fakeGateway) CourseRooms(ctx context.Context, courseID string) ([]core.ChatRoom, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var rooms []core.ChatRoom
	for _, r := range g.rooms {
		if r.CourseID == courseID {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

func (g *fakeGateway) Me(ctx context.Context) (*core.Profile, error) {
	return &core.Profile{ID: "u1", FullName: "Ada Lovelace"}, nil
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
