package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// InsertEvent announces a committed message insert. Only ids travel on the feed;
// subscribers fetch the full row themselves.
type InsertEvent struct {
	MessageID string `json:"id"`
	RoomID    string `json:"room_id"`
}

var ErrFeedClosed = errors.New("feed closed")

type Publisher interface {
	Publish(ctx context.Context, e InsertEvent) error
}

// Feed is a per-room change feed of message inserts.
type Feed interface {
	Publisher

	// Subscribe returns a channel of inserts for the room and a func that ends the subscription.
	// The channel is closed when the subscription ends, either through the returned func,
	// the context, Close, or because the subscriber fell behind.
	Subscribe(ctx context.Context, roomID string) (<-chan InsertEvent, func(), error)

	Close() error
}

type feedOptions struct {
	buffer int
	logger *slog.Logger
}

type FeedOption func(*feedOptions)

// WithFeedBuffer sets how many undelivered events a subscriber may hold
// before it is dropped.
func WithFeedBuffer(n int) FeedOption {
	return func(o *feedOptions) {
		if n > 0 {
			o.buffer = n
		}
	}
}

func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(o *feedOptions) {
		o.logger = logger
	}
}

func newFeedOptions(opts []FeedOption) feedOptions {
	o := feedOptions{
		buffer: 64,
		logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryFeed fans inserts out to in-process subscribers.
type MemoryFeed struct {
	subs   *SyncMap[string, map[int64]chan InsertEvent]
	nextID atomic.Int64
	closed atomic.Bool
	opts   feedOptions
}

func NewMemoryFeed(opts ...FeedOption) *MemoryFeed {
	return &MemoryFeed{
		subs: NewSyncMap[string, map[int64]chan InsertEvent](),
		opts: newFeedOptions(opts),
	}
}

func (f *MemoryFeed) Publish(ctx context.Context, e InsertEvent) error {
	if f.closed.Load() {
		return ErrFeedClosed
	}
	f.subs.Update(e.RoomID, func(subs map[int64]chan InsertEvent, ok bool) (map[int64]chan InsertEvent, bool) {
		for id, ch := range subs {
			select {
			case ch <- e:
			default:
				f.opts.logger.Warn("dropping slow feed subscriber",
					slog.String("room_id", e.RoomID), slog.Int64("subscriber", id))
				close(ch)
				delete(subs, id)
			}
		}
		return subs, len(subs) > 0
	})
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, roomID string) (<-chan InsertEvent, func(), error) {
	if f.closed.Load() {
		return nil, nil, ErrFeedClosed
	}

	id := f.nextID.Add(1)
	ch := make(chan InsertEvent, f.opts.buffer)
	f.subs.Update(roomID, func(subs map[int64]chan InsertEvent, ok bool) (map[int64]chan InsertEvent, bool) {
		if !ok {
			subs = make(map[int64]chan InsertEvent)
		}
		subs[id] = ch
		return subs, true
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.subs.Update(roomID, func(subs map[int64]chan InsertEvent, ok bool) (map[int64]chan InsertEvent, bool) {
				if c, found := subs[id]; found {
					close(c)
					delete(subs, id)
				}
				return subs, len(subs) > 0
			})
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	return ch, func() {
		stop()
		cancel()
	}, nil
}

func (f *MemoryFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.subs.Drain(func(roomID string, subs map[int64]chan InsertEvent) {
		for _, ch := range subs {
			close(ch)
		}
	})
	return nil
}
