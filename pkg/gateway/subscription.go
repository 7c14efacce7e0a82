package gateway

import (
	"sync"
	"sync/atomic"
)

type subscription struct {
	done     chan struct{}
	finished sync.Once
	closed   atomic.Bool
	stop     func()

	mu  sync.Mutex
	err error
}

func newSubscription(stop func()) *subscription {
	return &subscription{
		done: make(chan struct{}),
		stop: stop,
	}
}

// finish marks the feed as ended. err is ignored when the feed was closed by the owner.
func (s *subscription) finish(err error) {
	s.finished.Do(func() {
		if !s.closed.Load() {
			if err == nil {
				err = ErrFeedDropped
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		close(s.done)
	})
}

func (s *subscription) active() bool {
	return !s.closed.Load()
}

func (s *subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.stop()
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
