// Package gateway is the thin boundary between the chat state layer and the hosted backend.
// It exposes history reads, single message reads, inserts, room bookkeeping and the
// per-room insert feed, and translates every backend failure into a *RemoteError.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/putto11262002/coursechat/core"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	// ErrFeedDropped is reported by a Subscription whose feed ended without Close being called.
	ErrFeedDropped = errors.New("feed dropped")
)

// RemoteError is returned for any failed backend call.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func remoteError(op string, err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &RemoteError{Op: op, Message: err.Error(), Err: err}
}

// Subscription is a live room insert feed.
type Subscription interface {
	// Close ends the feed. No insert callback starts after Close returns.
	Close()
	// Done is closed once the feed has ended, whether through Close or a drop.
	Done() <-chan struct{}
	// Err reports why the feed ended. It is nil while running and after Close.
	Err() error
}

type Gateway interface {
	// FetchHistory returns the room's messages ascending by created_at with the author join.
	FetchHistory(ctx context.Context, roomID string) ([]core.ChatMessage, error)

	// FetchMessage returns a single message with the author join.
	FetchMessage(ctx context.Context, messageID string) (*core.ChatMessage, error)

	// InsertMessage persists a message and returns it with its server id, timestamps and author join.
	InsertMessage(ctx context.Context, roomID, authorID, content string) (*core.ChatMessage, error)

	// TouchRoom sets the room's updated_at to now.
	TouchRoom(ctx context.Context, roomID string) error

	// SubscribeToRoomInserts returns once the backend acknowledged the subscription.
	// onInsert is called with the id of every message inserted into the room afterwards.
	// ctx bounds the handshake only.
	SubscribeToRoomInserts(ctx context.Context, roomID string, onInsert func(messageID string)) (Subscription, error)

	ListRooms(ctx context.Context) ([]core.ChatRoom, error)

	CreateRoom(ctx context.Context, input core.RoomCreateInput) (*core.ChatRoom, error)

	// CourseRooms lists a course's rooms, newest first, provisioning a discussion room if it has none.
	CourseRooms(ctx context.Context, courseID string) ([]core.ChatRoom, error)

	// Me returns the identity the gateway acts as.
	Me(ctx context.Context) (*core.Profile, error)
}
