package core

import (
	"encoding/json"
	"fmt"
	"io"
)

// Feed frame types.
const (
	// SubscribedEvent acknowledges a room subscription. It is always the first frame.
	SubscribedEvent = "subscribed"
	// InsertEventType announces a persisted message in the subscribed room.
	InsertEventType = "insert"
)

// Event is a frame on the room change feed.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Payload.Size: %d}", e.Type, len(e.Payload))
}

// NewEvent marshals the payload into an event of type t.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// SubscribedPayload is the payload of a SubscribedEvent.
type SubscribedPayload struct {
	RoomID string `json:"room_id"`
}
