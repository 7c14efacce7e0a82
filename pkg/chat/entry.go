package chat

import (
	"github.com/google/uuid"
	"github.com/putto11262002/coursechat/core"
)

// DeliveryStatus tags every entry the view renders.
type DeliveryStatus int

const (
	// Sent entries are persisted by the backend.
	Sent DeliveryStatus = iota
	// Pending entries are awaiting the backend's acknowledgement.
	Pending
	// Failed entries were rejected by the backend and can be retried or discarded.
	Failed
)

func (s DeliveryStatus) String() string {
	switch s {
	case Sent:
		return "sent"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a message as the view sees it.
type Entry struct {
	core.ChatMessage
	Status DeliveryStatus
	// Err is set for Failed entries.
	Err error
}

const tempIDPrefix = "temp-"

func newTempID() string {
	return tempIDPrefix + uuid.New().String()
}

// SendResult is the outcome of a send: Sent with the persisted message, or Failed with the reason.
type SendResult struct {
	Status DeliveryStatus
	// TempID identifies the outbox entry created for the send.
	TempID  string
	Message *core.ChatMessage
	Err     error
}
