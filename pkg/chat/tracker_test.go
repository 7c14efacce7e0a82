package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/putto11262002/coursechat/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusRecorder struct {
	mu   sync.Mutex
	seen []ConnectionStatus
}

func (r *statusRecorder) record(s ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *statusRecorder) statuses() []ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionStatus(nil), r.seen...)
}

type insertRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *insertRecorder) handle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *insertRecorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newTestTracker() (*Tracker, *fakeGateway, *statusRecorder) {
	gw := newFakeGateway()
	tr := NewTracker(gw, WithTrackerLogger(discard))
	rec := &statusRecorder{}
	tr.OnStatusChange(rec.record)
	return tr, gw, rec
}

func TestTrackerArm(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes and reports connected", func(t *testing.T) {
		tr, gw, rec := newTestTracker()
		assert.Equal(t, Connecting, tr.Status())

		inserts := &insertRecorder{}
		require.NoError(t, tr.Arm(ctx, "r1", inserts.handle))
		assert.Equal(t, Connected, tr.Status())
		assert.NoError(t, tr.Err())
		assert.Equal(t, []ConnectionStatus{Connected}, rec.statuses())

		gw.emit("r1", "m1")
		assert.Equal(t, []string{"m1"}, inserts.received())
	})

	t.Run("subscribe failure", func(t *testing.T) {
		tr, gw, rec := newTestTracker()
		gw.set(func(g *fakeGateway) { g.subscribeErr = errors.New("refused") })

		err := tr.Arm(ctx, "r1", func(string) {})
		var subErr *SubscriptionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, "r1", subErr.RoomID)
		assert.Equal(t, Disconnected, tr.Status())
		assert.ErrorAs(t, tr.Err(), &subErr)
		assert.Equal(t, []ConnectionStatus{Disconnected}, rec.statuses())
	})

	t.Run("re-arming tears down the previous subscription", func(t *testing.T) {
		tr, gw, _ := newTestTracker()
		first := &insertRecorder{}
		second := &insertRecorder{}

		require.NoError(t, tr.Arm(ctx, "r1", first.handle))
		old := gw.lastSub()
		require.NoError(t, tr.Arm(ctx, "r2", second.handle))

		assert.True(t, old.isClosed())
		assert.Empty(t, gw.openSubs("r1"))
		assert.Len(t, gw.openSubs("r2"), 1)

		// a late callback of the old subscription is ignored
		old.onInsert("late")
		gw.emit("r2", "m1")
		assert.Empty(t, first.received())
		assert.Equal(t, []string{"m1"}, second.received())
	})
}

func TestTrackerDrop(t *testing.T) {
	ctx := context.Background()
	tr, gw, rec := newTestTracker()
	require.NoError(t, tr.Arm(ctx, "r1", func(string) {}))

	dropped := gw.lastSub()
	dropped.drop()

	require.Eventually(t, func() bool {
		return tr.Status() == Disconnected
	}, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, tr.Err(), ErrSubscriptionDropped)
	assert.ErrorIs(t, tr.Err(), gateway.ErrFeedDropped)
	assert.Equal(t, []ConnectionStatus{Connected, Disconnected}, rec.statuses())
	assert.True(t, dropped.isClosed(), "dropped subscription is released")
	assert.Empty(t, gw.openSubs("r1"))
}

func TestTrackerReconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("re-arms with a single listener", func(t *testing.T) {
		tr, gw, rec := newTestTracker()
		inserts := &insertRecorder{}
		require.NoError(t, tr.Arm(ctx, "r1", inserts.handle))
		dropped := gw.lastSub()
		dropped.drop()
		require.Eventually(t, func() bool {
			return tr.Status() == Disconnected
		}, time.Second, 10*time.Millisecond)

		require.NoError(t, tr.Reconnect(ctx, "r1"))
		assert.True(t, dropped.isClosed())
		assert.Equal(t, Connected, tr.Status())
		assert.NoError(t, tr.Err())
		assert.Equal(t, []ConnectionStatus{Connected, Disconnected, Connecting, Connected}, rec.statuses())
		assert.Len(t, gw.openSubs("r1"), 1)

		gw.emit("r1", "m1")
		assert.Equal(t, []string{"m1"}, inserts.received())
	})

	t.Run("repeated reconnects", func(t *testing.T) {
		tr, gw, _ := newTestTracker()
		inserts := &insertRecorder{}
		require.NoError(t, tr.Arm(ctx, "r1", inserts.handle))

		for range 3 {
			require.NoError(t, tr.Reconnect(ctx, "r1"))
		}
		assert.Len(t, gw.openSubs("r1"), 1)
		assert.Equal(t, 4, gw.count("Subscribe:r1"))

		gw.emit("r1", "m1")
		assert.Equal(t, []string{"m1"}, inserts.received())
	})

	t.Run("never armed", func(t *testing.T) {
		tr, _, _ := newTestTracker()
		assert.ErrorIs(t, tr.Reconnect(ctx, "r1"), ErrNoActiveRoom)
	})
}

func TestTrackerClose(t *testing.T) {
	ctx := context.Background()
	tr, gw, rec := newTestTracker()
	inserts := &insertRecorder{}
	require.NoError(t, tr.Arm(ctx, "r1", inserts.handle))
	sub := gw.lastSub()

	tr.Close()
	assert.True(t, sub.isClosed())
	assert.Equal(t, Disconnected, tr.Status())
	assert.NoError(t, tr.Err())
	assert.Equal(t, []ConnectionStatus{Connected, Disconnected}, rec.statuses())

	sub.onInsert("m1")
	assert.Empty(t, inserts.received())
	assert.ErrorIs(t, tr.Reconnect(ctx, "r1"), ErrNoActiveRoom)
}
