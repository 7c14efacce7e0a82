package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/putto11262002/coursechat/pkg/gateway"
)

type ConnectionStatus int

const (
	Connecting ConnectionStatus = iota
	Connected
	Disconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Tracker owns the single room feed subscription and reports its health.
// Reconnection is manual. Every Arm starts a new generation and callbacks from
// older generations are ignored, so a reconnect never leaves a duplicate listener.
type Tracker struct {
	gw     gateway.Gateway
	logger *slog.Logger

	mu        sync.Mutex
	status    ConnectionStatus
	err       error
	gen       uint64
	sub       gateway.Subscription
	roomID    string
	onInsert  func(messageID string)
	listeners []func(ConnectionStatus)
}

type TrackerOption func(*Tracker)

func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func NewTracker(gw gateway.Gateway, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		gw:     gw,
		status: Connecting,
		logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Status() ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns why the tracker is Disconnected, if it is.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// OnStatusChange registers f to be called on every status transition.
func (t *Tracker) OnStatusChange(f func(ConnectionStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, f)
}

func (t *Tracker) setStatus(gen uint64, status ConnectionStatus, err error) {
	t.mu.Lock()
	if t.gen != gen || t.status == status {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.err = err
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	for _, f := range listeners {
		f(status)
	}
}

// Arm subscribes to roomID's inserts, tearing down any existing subscription first.
// onInsert receives the id of every message inserted in the room while armed.
func (t *Tracker) Arm(ctx context.Context, roomID string, onInsert func(messageID string)) error {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	old := t.sub
	t.sub = nil
	t.roomID = roomID
	t.onInsert = onInsert
	t.mu.Unlock()

	if old != nil {
		old.Close()
	}
	t.setStatus(gen, Connecting, nil)

	sub, err := t.gw.SubscribeToRoomInserts(ctx, roomID, func(messageID string) {
		if !t.current(gen) {
			return
		}
		onInsert(messageID)
	})
	if err != nil {
		subErr := &SubscriptionError{RoomID: roomID, Err: err}
		t.logger.Error(subErr.Error())
		t.setStatus(gen, Disconnected, subErr)
		return subErr
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		sub.Close()
		return nil
	}
	t.sub = sub
	t.mu.Unlock()

	t.setStatus(gen, Connected, nil)
	go t.watch(gen, roomID, sub)
	return nil
}

// Reconnect re-arms the feed of roomID with the handler of the previous Arm.
func (t *Tracker) Reconnect(ctx context.Context, roomID string) error {
	t.mu.Lock()
	onInsert := t.onInsert
	t.mu.Unlock()
	if onInsert == nil {
		return ErrNoActiveRoom
	}
	return t.Arm(ctx, roomID, onInsert)
}

func (t *Tracker) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

func (t *Tracker) watch(gen uint64, roomID string, sub gateway.Subscription) {
	<-sub.Done()
	err := sub.Err()
	if err == nil {
		return
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.sub = nil
	t.mu.Unlock()
	sub.Close()

	dropped := &SubscriptionError{RoomID: roomID, Err: fmt.Errorf("%w: %w", ErrSubscriptionDropped, err)}
	t.logger.Warn(dropped.Error())
	t.setStatus(gen, Disconnected, dropped)
}

// Close tears down the subscription and leaves the tracker Disconnected.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	old := t.sub
	t.sub = nil
	t.onInsert = nil
	t.mu.Unlock()

	if old != nil {
		old.Close()
	}
	t.setStatus(gen, Disconnected, nil)
}
