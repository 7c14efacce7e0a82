package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/gateway"
	"golang.org/x/sync/singleflight"
)

// Store holds the message list of exactly one active room.
//
// Persisted messages are kept in ascending created order and are unique by id.
// Sends in flight and failed sends live in a separate outbox so the persisted
// list is never touched by a failure.
type Store struct {
	gw     gateway.Gateway
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.Mutex
	roomID   string
	messages []core.ChatMessage
	ids      map[string]struct{}
	outbox   []Entry
	loading  bool
	loadSeq  uint64
	buffered []string
	early    []core.ChatMessage

	listeners []func()
}

type StoreOption func(*Store)

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(gw gateway.Gateway, opts ...StoreOption) *Store {
	s := &Store{
		gw:     gw,
		ids:    make(map[string]struct{}),
		logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers f to be called after every state change.
// f runs outside the store's lock and may read Messages.
func (s *Store) OnChange(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, f)
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, f := range listeners {
		f()
	}
}

func (s *Store) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Messages returns a snapshot of the persisted messages followed by the outbox.
func (s *Store) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.messages)+len(s.outbox))
	for _, m := range s.messages {
		entries = append(entries, Entry{ChatMessage: m, Status: Sent})
	}
	return append(entries, s.outbox...)
}

// Activate makes roomID the active room and starts buffering feed inserts until
// the next LoadRoom completes. Switching to a different room discards all state
// of the previous one.
func (s *Store) Activate(roomID string) {
	s.mu.Lock()
	changed := s.activateLocked(roomID)
	s.loading = true
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store) activateLocked(roomID string) bool {
	if s.roomID == roomID {
		return false
	}
	s.roomID = roomID
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.outbox = nil
	s.buffered = nil
	s.early = nil
	s.loadSeq++
	return true
}

// LoadRoom replaces the list with the room's history and then applies any inserts
// buffered while the history was in flight. Calling it again simply refetches.
// On failure the history is left out, only messages confirmed while the fetch was
// in flight are kept, and a *FetchError is returned.
func (s *Store) LoadRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	changed := s.activateLocked(roomID)
	s.loading = true
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()
	if changed {
		s.notify()
	}

	history, err := s.gw.FetchHistory(ctx, roomID)

	s.mu.Lock()
	if s.roomID != roomID || s.loadSeq != seq {
		// superseded by a newer load
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	buffered, early := s.buffered, s.early
	s.buffered, s.early = nil, nil

	if err != nil {
		s.messages = nil
		s.ids = make(map[string]struct{})
		for _, m := range early {
			s.appendLocked(m)
		}
		s.mu.Unlock()
		s.notify()
		fetchErr := &FetchError{RoomID: roomID, Err: err}
		s.logger.Error(fetchErr.Error())
		return fetchErr
	}

	s.messages = s.messages[:0]
	s.ids = make(map[string]struct{}, len(history))
	slices.SortStableFunc(history, func(a, b core.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	for _, m := range history {
		s.appendLocked(m)
	}
	for _, m := range early {
		s.appendLocked(m)
	}
	s.mu.Unlock()
	s.notify()

	for _, id := range buffered {
		s.OnRemoteInsert(ctx, id, roomID)
	}
	return nil
}

// appendLocked appends m unless its id is already present.
func (s *Store) appendLocked(m core.ChatMessage) bool {
	if _, ok := s.ids[m.ID]; ok {
		return false
	}
	s.ids[m.ID] = struct{}{}
	s.messages = append(s.messages, m)
	return true
}

// Send persists content as authorID in roomID.
//
// Blank content is rejected with ErrEmptyMessage before any network call.
// Otherwise a Pending outbox entry is shown until the backend answers. On success
// the entry is replaced by the persisted message, appended unless the feed already
// delivered it, and the room's updated_at is touched on a best-effort basis.
// On failure the entry becomes Failed and the result carries a *SendError.
// Sends to a room other than the active one are persisted without touching the list.
func (s *Store) Send(ctx context.Context, roomID, authorID, content string) SendResult {
	if strings.TrimSpace(content) == "" {
		return SendResult{Status: Failed, Err: ErrEmptyMessage}
	}

	entry := Entry{
		ChatMessage: core.ChatMessage{
			ID:        newTempID(),
			Content:   content,
			RoomID:    roomID,
			UserID:    authorID,
			CreatedAt: time.Now().UTC(),
		},
		Status: Pending,
	}
	entry.UpdatedAt = entry.CreatedAt

	s.mu.Lock()
	active := roomID == s.roomID
	if active {
		s.outbox = append(s.outbox, entry)
	}
	s.mu.Unlock()
	if active {
		s.notify()
	}

	return s.deliver(ctx, entry.ID, roomID, authorID, content)
}

func (s *Store) deliver(ctx context.Context, tempID, roomID, authorID, content string) SendResult {
	m, err := s.gw.InsertMessage(ctx, roomID, authorID, content)
	if err != nil {
		sendErr := &SendError{RoomID: roomID, TempID: tempID, Err: err}
		s.logger.Error(sendErr.Error())
		s.mu.Lock()
		if i := s.outboxIndexLocked(tempID); i >= 0 {
			s.outbox[i].Status = Failed
			s.outbox[i].Err = err
		}
		s.mu.Unlock()
		s.notify()
		return SendResult{Status: Failed, TempID: tempID, Err: sendErr}
	}

	s.mu.Lock()
	if i := s.outboxIndexLocked(tempID); i >= 0 {
		s.outbox = slices.Delete(s.outbox, i, i+1)
	}
	if s.roomID == roomID {
		if s.loading {
			s.early = append(s.early, *m)
		} else {
			s.appendLocked(*m)
		}
	}
	s.mu.Unlock()
	s.notify()

	if err := s.gw.TouchRoom(ctx, roomID); err != nil {
		s.logger.Warn(fmt.Sprintf("touch room: %v", err), slog.String("room_id", roomID))
	}

	return SendResult{Status: Sent, TempID: tempID, Message: m}
}

func (s *Store) outboxIndexLocked(tempID string) int {
	return slices.IndexFunc(s.outbox, func(e Entry) bool {
		return e.ID == tempID
	})
}

// Retry resends a Failed outbox entry.
func (s *Store) Retry(ctx context.Context, tempID string) SendResult {
	s.mu.Lock()
	i := s.outboxIndexLocked(tempID)
	if i < 0 || s.outbox[i].Status != Failed {
		s.mu.Unlock()
		return SendResult{Status: Failed, TempID: tempID, Err: ErrUnknownEntry}
	}
	s.outbox[i].Status = Pending
	s.outbox[i].Err = nil
	e := s.outbox[i]
	s.mu.Unlock()
	s.notify()

	return s.deliver(ctx, e.ID, e.RoomID, e.UserID, e.Content)
}

// Discard drops a Failed outbox entry.
func (s *Store) Discard(tempID string) error {
	s.mu.Lock()
	i := s.outboxIndexLocked(tempID)
	if i < 0 || s.outbox[i].Status != Failed {
		s.mu.Unlock()
		return ErrUnknownEntry
	}
	s.outbox = slices.Delete(s.outbox, i, i+1)
	s.mu.Unlock()
	s.notify()
	return nil
}

// OnRemoteInsert applies a feed insert. Inserts for other rooms are ignored, inserts
// arriving while history is loading are buffered, and ids already present are no-ops.
// Otherwise the message is fetched with its author join and appended.
func (s *Store) OnRemoteInsert(ctx context.Context, messageID, roomID string) {
	s.mu.Lock()
	if roomID != s.roomID {
		s.mu.Unlock()
		s.logger.Debug("ignoring insert for inactive room", slog.String("room_id", roomID))
		return
	}
	if s.loading {
		s.buffered = append(s.buffered, messageID)
		s.mu.Unlock()
		return
	}
	if _, ok := s.ids[messageID]; ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(messageID, func() (interface{}, error) {
		return s.gw.FetchMessage(ctx, messageID)
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("fetch inserted message: %v", err), slog.String("message_id", messageID))
		return
	}
	m := v.(*core.ChatMessage)

	s.mu.Lock()
	if s.roomID != roomID || m.RoomID != roomID {
		s.mu.Unlock()
		return
	}
	if s.loading {
		s.early = append(s.early, *m)
		s.mu.Unlock()
		return
	}
	added := s.appendLocked(*m)
	s.mu.Unlock()
	if added {
		s.notify()
	}
}
