package coursechat

import (
	"fmt"
	"net/http"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/router"
)

type ChatHandler struct {
	chatStore core.ChatStore
}

func NewChatHandler(chatStore core.ChatStore) *ChatHandler {
	return &ChatHandler{chatStore: chatStore}
}

func (h *ChatHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	rooms, err := h.chatStore.ListRooms(r.Context())
	if err != nil {
		return fmt.Errorf("ListRooms: %w", err)
	}
	return router.JSON(w, http.StatusOK, rooms)
}

func (h *ChatHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload core.RoomCreateInput
	if err := decodeValid(r, &payload); err != nil {
		return err
	}

	room, err := h.chatStore.CreateRoom(r.Context(), payload)
	if err != nil {
		return fmt.Errorf("CreateRoom: %w", err)
	}
	return router.JSON(w, http.StatusCreated, room)
}

func (h *ChatHandler) TouchRoomHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.chatStore.TouchRoom(r.Context(), r.PathValue("roomID")); err != nil {
		return fmt.Errorf("TouchRoom: %w", err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *ChatHandler) CourseRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	rooms, err := h.chatStore.CourseRooms(r.Context(), r.PathValue("courseID"))
	if err != nil {
		return fmt.Errorf("CourseRooms: %w", err)
	}
	return router.JSON(w, http.StatusOK, rooms)
}

// CreateCourseHandler is restricted to tutors and admins. The tutor defaults to the caller.
func (h *ChatHandler) CreateCourseHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	if !session.CanManageCourses() {
		return router.Forbidden("only tutors can create courses")
	}

	var payload core.CourseCreateInput
	if err := decodeValid(r, &payload); err != nil {
		return err
	}
	if payload.TutorID == "" {
		payload.TutorID = session.UserID
	}

	course, err := h.chatStore.CreateCourse(r.Context(), payload)
	if err != nil {
		return fmt.Errorf("CreateCourse: %w", err)
	}
	return router.JSON(w, http.StatusCreated, course)
}

func (h *ChatHandler) GetRoomMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := r.PathValue("roomID")
	room, err := h.chatStore.GetRoomByID(r.Context(), roomID)
	if err != nil {
		return fmt.Errorf("GetRoomByID: %w", err)
	}
	if room == nil {
		return router.NotFound("room not found")
	}

	messages, err := h.chatStore.GetRoomMessages(r.Context(), roomID)
	if err != nil {
		return fmt.Errorf("GetRoomMessages: %w", err)
	}
	return router.JSON(w, http.StatusOK, messages)
}

type SendMessagePayload struct {
	Content string `json:"content" validate:"required,nonblank"`
	// UserID must be the caller. It defaults to the caller when omitted.
	UserID string `json:"user_id"`
}

func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload SendMessagePayload
	if err := decodeValid(r, &payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		payload.UserID = session.UserID
	}
	if payload.UserID != session.UserID {
		return router.Forbidden("cannot post as another user")
	}

	message, err := h.chatStore.InsertMessage(r.Context(), core.MessageCreateInput{
		Content: payload.Content,
		UserID:  payload.UserID,
		RoomID:  r.PathValue("roomID"),
	})
	if err != nil {
		return fmt.Errorf("InsertMessage: %w", err)
	}
	return router.JSON(w, http.StatusCreated, message)
}

func (h *ChatHandler) GetMessageHandler(w http.ResponseWriter, r *http.Request) error {
	message, err := h.chatStore.GetMessage(r.Context(), r.PathValue("messageID"))
	if err != nil {
		return fmt.Errorf("GetMessage: %w", err)
	}
	if message == nil {
		return router.NotFound("message not found")
	}
	return router.JSON(w, http.StatusOK, message)
}
