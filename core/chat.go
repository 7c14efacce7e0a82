package core

import (
	"context"
	"errors"
	"time"
)

// Author is the denormalized author join carried by a message.
type Author struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatMessage represents a persisted message in a chat room.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// User is nil when the author join could not be resolved.
	User *Author `json:"user,omitempty"`
}

// ChatRoom represents a chat room, optionally scoped to a course.
type ChatRoom struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CourseID  string    `json:"course_id,omitempty"`
	IsPrivate bool      `json:"is_private"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Course is the minimal course record a discussion room hangs off.
type Course struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	TutorID   string    `json:"tutor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrInvalidRoom is returned when a chat room is not found.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrInvalidMessage is returned when a message is not found or its input is invalid.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidCourse is returned when a course is not found.
	ErrInvalidCourse = errors.New("invalid course")
)

// MessageCreateInput represents the input for creating a message.
type MessageCreateInput struct {
	Content string `json:"content" validate:"required,nonblank"`
	UserID  string `json:"user_id" validate:"required"`
	RoomID  string `json:"room_id" validate:"required"`
}

// Validate validates the message input.
func (m *MessageCreateInput) Validate() error {
	return validate.Struct(m)
}

// RoomCreateInput represents the input for creating a room.
type RoomCreateInput struct {
	Name      string `json:"name" validate:"required,nonblank"`
	CourseID  string `json:"course_id,omitempty"`
	IsPrivate bool   `json:"is_private"`
}

func (r *RoomCreateInput) Validate() error {
	return validate.Struct(r)
}

type CourseCreateInput struct {
	Title   string `json:"title" validate:"required,nonblank"`
	TutorID string `json:"tutor_id,omitempty"`
}

func (c *CourseCreateInput) Validate() error {
	return validate.Struct(c)
}

type ChatStore interface {
	// CreateRoom creates a chat room.
	// If the input references a course that does not exist, it returns ErrInvalidCourse.
	CreateRoom(ctx context.Context, input RoomCreateInput) (*ChatRoom, error)

	// GetRoomByID returns the room with the given ID.
	// If the room is not found, it returns nil.
	GetRoomByID(ctx context.Context, roomID string) (*ChatRoom, error)

	// ListRooms returns all rooms ordered by updated_at descending.
	ListRooms(ctx context.Context) ([]ChatRoom, error)

	// CourseRooms returns the rooms of a course ordered by created_at descending.
	// When the course has no rooms a public "<title> Discussion" room is created first.
	// If the course does not exist, it returns ErrInvalidCourse.
	CourseRooms(ctx context.Context, courseID string) ([]ChatRoom, error)

	// TouchRoom sets the room's updated_at to now.
	// If the room is not found, it returns ErrInvalidRoom.
	TouchRoom(ctx context.Context, roomID string) error

	CreateCourse(ctx context.Context, input CourseCreateInput) (*Course, error)

	// InsertMessage persists a message and returns it with the author join.
	// If the room does not exist, it returns ErrInvalidRoom.
	// If the author does not exist, it returns ErrInvalidUser.
	// If the input is invalid, it returns ErrInvalidMessage.
	InsertMessage(ctx context.Context, input MessageCreateInput) (*ChatMessage, error)

	// GetRoomMessages returns the room's messages in ascending order of created_at.
	// An empty, non-nil slice is returned for a room without messages.
	GetRoomMessages(ctx context.Context, roomID string) ([]ChatMessage, error)

	// GetMessage returns a single message with its author join.
	// If the message is not found, it returns nil.
	GetMessage(ctx context.Context, messageID string) (*ChatMessage, error)
}
