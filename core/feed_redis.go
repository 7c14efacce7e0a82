package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisFeed carries inserts over Redis pub/sub so several backend processes share one feed.
type RedisFeed struct {
	client *redis.Client
	prefix string
	opts   feedOptions
}

func NewRedisFeed(client *redis.Client, prefix string, opts ...FeedOption) *RedisFeed {
	if prefix == "" {
		prefix = "coursechat"
	}
	return &RedisFeed{
		client: client,
		prefix: prefix,
		opts:   newFeedOptions(opts),
	}
}

func (f *RedisFeed) channel(roomID string) string {
	return f.prefix + ":room:" + roomID
}

func (f *RedisFeed) Publish(ctx context.Context, e InsertEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(e.RoomID), b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, roomID string) (<-chan InsertEvent, func(), error) {
	ps := f.client.Subscribe(ctx, f.channel(roomID))
	// wait for the subscription confirmation so no publish after return is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan InsertEvent, f.opts.buffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			ps.Close()
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e InsertEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					f.opts.logger.Error(fmt.Sprintf("decode insert: %v", err), slog.String("channel", msg.Channel))
					continue
				}
				select {
				case out <- e:
				default:
					f.opts.logger.Warn("dropping slow feed subscriber", slog.String("room_id", roomID))
					cancel()
					return
				}
			}
		}
	}()

	return out, func() {
		stop()
		cancel()
	}, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
