package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned for content that is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoActiveRoom = errors.New("no active room")
	// ErrSubscriptionDropped is reported when the room feed ends without being closed.
	ErrSubscriptionDropped = errors.New("subscription dropped")
	// ErrUnknownEntry is returned when an outbox entry does not exist or is not retryable.
	ErrUnknownEntry = errors.New("unknown outbox entry")
)

// FetchError means a room's history could not be loaded. The message list is left empty.
type FetchError struct {
	RoomID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch history of room %s: %v", e.RoomID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SendError means a message could not be persisted. Its outbox entry is marked Failed.
type SendError struct {
	RoomID string
	TempID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message to room %s: %v", e.RoomID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// SubscriptionError means the room feed could not be armed or was dropped.
type SubscriptionError struct {
	RoomID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("room %s feed: %v", e.RoomID, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
