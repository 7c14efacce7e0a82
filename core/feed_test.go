package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan InsertEvent) (InsertEvent, bool) {
	t.Helper()
	select {
	case e, ok := <-ch:
		return e, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for feed")
		return InsertEvent{}, false
	}
}

func TestMemoryFeed(t *testing.T) {
	ctx := context.Background()

	t.Run("fan out per room", func(t *testing.T) {
		feed := NewMemoryFeed()
		defer feed.Close()

		a1, cancelA1, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		defer cancelA1()
		a2, cancelA2, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		defer cancelA2()
		b, cancelB, err := feed.Subscribe(ctx, "b")
		require.NoError(t, err)
		defer cancelB()

		e := InsertEvent{MessageID: "m1", RoomID: "a"}
		require.NoError(t, feed.Publish(ctx, e))

		got, ok := receive(t, a1)
		assert.True(t, ok)
		assert.Equal(t, e, got)
		got, ok = receive(t, a2)
		assert.True(t, ok)
		assert.Equal(t, e, got)
		assert.Empty(t, b)
	})

	t.Run("cancel closes the channel", func(t *testing.T) {
		feed := NewMemoryFeed()
		defer feed.Close()

		ch, cancel, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		cancel()
		cancel()

		_, ok := receive(t, ch)
		assert.False(t, ok)
		require.NoError(t, feed.Publish(ctx, InsertEvent{MessageID: "m1", RoomID: "a"}))
		assert.Zero(t, feed.subs.Len())
	})

	t.Run("rooms are forgotten once their last subscriber leaves", func(t *testing.T) {
		feed := NewMemoryFeed()
		defer feed.Close()

		_, cancelA1, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		_, cancelA2, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, feed.Publish(ctx, InsertEvent{MessageID: "m1", RoomID: "quiet"}))
		assert.Equal(t, 1, feed.subs.Len())

		cancelA1()
		subs, ok := feed.subs.Load("a")
		require.True(t, ok)
		assert.Len(t, subs, 1)

		cancelA2()
		_, ok = feed.subs.Load("a")
		assert.False(t, ok)
		assert.Zero(t, feed.subs.Len())
	})

	t.Run("context cancellation ends the subscription", func(t *testing.T) {
		feed := NewMemoryFeed()
		defer feed.Close()

		subCtx, cancelCtx := context.WithCancel(ctx)
		ch, cancel, err := feed.Subscribe(subCtx, "a")
		require.NoError(t, err)
		defer cancel()

		cancelCtx()
		_, ok := receive(t, ch)
		assert.False(t, ok)
	})

	t.Run("slow subscriber is dropped", func(t *testing.T) {
		feed := NewMemoryFeed(WithFeedBuffer(1))
		defer feed.Close()

		ch, cancel, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, feed.Publish(ctx, InsertEvent{MessageID: "m1", RoomID: "a"}))
		require.NoError(t, feed.Publish(ctx, InsertEvent{MessageID: "m2", RoomID: "a"}))

		got, ok := receive(t, ch)
		assert.True(t, ok)
		assert.Equal(t, "m1", got.MessageID)
		_, ok = receive(t, ch)
		assert.False(t, ok)

		_, ok = feed.subs.Load("a")
		assert.False(t, ok, "room with no subscribers left is forgotten")
	})

	t.Run("closed feed", func(t *testing.T) {
		feed := NewMemoryFeed()
		ch, _, err := feed.Subscribe(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, feed.Close())

		_, ok := receive(t, ch)
		assert.False(t, ok)
		assert.Zero(t, feed.subs.Len())

		_, _, err = feed.Subscribe(ctx, "a")
		assert.ErrorIs(t, err, ErrFeedClosed)
		assert.ErrorIs(t, feed.Publish(ctx, InsertEvent{RoomID: "a"}), ErrFeedClosed)
	})
}
