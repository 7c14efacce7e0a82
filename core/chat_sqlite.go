package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

type SQLiteChatStore struct {
	db        *sql.DB
	userStore UserStore
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

type ChatStoreOption func(*SQLiteChatStore)

// WithPublisher makes the store announce every committed message insert.
func WithPublisher(p Publisher) ChatStoreOption {
	return func(s *SQLiteChatStore) {
		s.publisher = p
	}
}

func WithClock(now func() time.Time) ChatStoreOption {
	return func(s *SQLiteChatStore) {
		s.now = now
	}
}

func WithChatLogger(logger *slog.Logger) ChatStoreOption {
	return func(s *SQLiteChatStore) {
		s.logger = logger
	}
}

func NewSQLiteChatStore(db *sql.DB, userStore UserStore, opts ...ChatStoreOption) *SQLiteChatStore {
	s := &SQLiteChatStore{
		db:        db,
		userStore: userStore,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const roomColumns = `id, name, course_id, is_private, created_at, updated_at`

const messageQuery = `
	SELECT m.id, m.content, m.room_id, m.user_id, m.created_at, m.updated_at,
	u.id, u.full_name, u.avatar_url
	FROM chat_messages AS m
	LEFT JOIN users AS u ON u.id = m.user_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*ChatRoom, error) {
	var room ChatRoom
	var courseID sql.NullString
	if err := row.Scan(&room.ID, &room.Name, &courseID, &room.IsPrivate,
		&room.CreatedAt, &room.UpdatedAt); err != nil {
		return nil, err
	}
	room.CourseID = courseID.String
	return &room, nil
}

func scanMessage(row scanner) (*ChatMessage, error) {
	var m ChatMessage
	var authorID, fullName, avatarURL sql.NullString
	if err := row.Scan(&m.ID, &m.Content, &m.RoomID, &m.UserID, &m.CreatedAt, &m.UpdatedAt,
		&authorID, &fullName, &avatarURL); err != nil {
		return nil, err
	}
	if authorID.Valid {
		m.User = &Author{FullName: fullName.String, AvatarURL: avatarURL.String}
	}
	return &m, nil
}

func (s *SQLiteChatStore) CreateRoom(ctx context.Context, input RoomCreateInput) (*ChatRoom, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoom, err)
	}

	var courseID sql.NullString
	if input.CourseID != "" {
		course, err := s.getCourse(ctx, input.CourseID)
		if err != nil {
			return nil, fmt.Errorf("getCourse: %w", err)
		}
		if course == nil {
			return nil, ErrInvalidCourse
		}
		courseID = sql.NullString{String: input.CourseID, Valid: true}
	}

	now := s.now().UTC()
	id := uuid.New().String()
	query := `INSERT INTO chat_rooms (id, name, course_id, is_private, created_at, updated_at)
	          VALUES (@id, @name, @course_id, @is_private, @created_at, @updated_at)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("id", id), sql.Named("name", input.Name),
		sql.Named("course_id", courseID), sql.Named("is_private", input.IsPrivate),
		sql.Named("created_at", now), sql.Named("updated_at", now))
	if err != nil {
		return nil, fmt.Errorf("ExecContext: %w", err)
	}

	room, err := s.GetRoomByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetRoomByID: %w", err)
	}
	return room, nil
}

func (s *SQLiteChatStore) GetRoomByID(ctx context.Context, roomID string) (*ChatRoom, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE id = @id", sql.Named("id", roomID))
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return room, nil
}

func (s *SQLiteChatStore) ListRooms(ctx context.Context) ([]ChatRoom, error) {
	return s.queryRooms(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms ORDER BY updated_at DESC, rowid DESC")
}

func (s *SQLiteChatStore) CourseRooms(ctx context.Context, courseID string) ([]ChatRoom, error) {
	course, err := s.getCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("getCourse: %w", err)
	}
	if course == nil {
		return nil, ErrInvalidCourse
	}

	rooms, err := s.queryRooms(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE course_id = @course_id ORDER BY created_at DESC, rowid DESC",
		sql.Named("course_id", courseID))
	if err != nil {
		return nil, err
	}
	if len(rooms) > 0 {
		return rooms, nil
	}

	room, err := s.CreateRoom(ctx, RoomCreateInput{
		Name:     course.Title + " Discussion",
		CourseID: course.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("CreateRoom: %w", err)
	}
	s.logger.Info("provisioned course discussion room",
		slog.String("course_id", course.ID), slog.String("room_id", room.ID))
	return []ChatRoom{*room}, nil
}

func (s *SQLiteChatStore) queryRooms(ctx context.Context, query string, args ...any) ([]ChatRoom, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	rooms := make([]ChatRoom, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return rooms, nil
}

func (s *SQLiteChatStore) TouchRoom(ctx context.Context, roomID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chat_rooms SET updated_at = @updated_at WHERE id = @id",
		sql.Named("updated_at", s.now().UTC()), sql.Named("id", roomID))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RowsAffected: %w", err)
	}
	if n == 0 {
		return ErrInvalidRoom
	}
	return nil
}

func (s *SQLiteChatStore) CreateCourse(ctx context.Context, input CourseCreateInput) (*Course, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCourse, err)
	}
	var tutorID sql.NullString
	if input.TutorID != "" {
		tutorID = sql.NullString{String: input.TutorID, Valid: true}
	}
	course := &Course{
		ID:        uuid.New().String(),
		Title:     input.Title,
		TutorID:   input.TutorID,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO courses (id, title, tutor_id, created_at) VALUES (@id, @title, @tutor_id, @created_at)",
		sql.Named("id", course.ID), sql.Named("title", course.Title),
		sql.Named("tutor_id", tutorID), sql.Named("created_at", course.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("ExecContext: %w", err)
	}
	return course, nil
}

func (s *SQLiteChatStore) getCourse(ctx context.Context, courseID string) (*Course, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, tutor_id, created_at FROM courses WHERE id = @id", sql.Named("id", courseID))
	var course Course
	var tutorID sql.NullString
	if err := row.Scan(&course.ID, &course.Title, &tutorID, &course.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	course.TutorID = tutorID.String
	return &course, nil
}

func (s *SQLiteChatStore) InsertMessage(ctx context.Context, input MessageCreateInput) (*ChatMessage, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	room, err := s.GetRoomByID(ctx, input.RoomID)
	if err != nil {
		return nil, fmt.Errorf("GetRoomByID: %w", err)
	}
	if room == nil {
		return nil, ErrInvalidRoom
	}

	user, err := s.userStore.GetUserByID(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("GetUserByID: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidUser
	}

	now := s.now().UTC()
	id := uuid.New().String()
	query := `INSERT INTO chat_messages (id, content, room_id, user_id, created_at, updated_at)
	          VALUES (@id, @content, @room_id, @user_id, @created_at, @updated_at)`
	_, err = s.db.ExecContext(ctx, query,
		sql.Named("id", id), sql.Named("content", input.Content),
		sql.Named("room_id", input.RoomID), sql.Named("user_id", input.UserID),
		sql.Named("created_at", now), sql.Named("updated_at", now))
	if err != nil {
		return nil, fmt.Errorf("ExecContext: %w", err)
	}

	message, err := s.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetMessage: %w", err)
	}

	if s.publisher != nil {
		event := InsertEvent{MessageID: id, RoomID: input.RoomID}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error(fmt.Sprintf("publish insert: %v", err), slog.String("message_id", id))
		}
	}

	return message, nil
}

func (s *SQLiteChatStore) GetRoomMessages(ctx context.Context, roomID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		messageQuery+" WHERE m.room_id = @room_id ORDER BY m.created_at ASC, m.rowid ASC",
		sql.Named("room_id", roomID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return messages, nil
}

func (s *SQLiteChatStore) GetMessage(ctx context.Context, messageID string) (*ChatMessage, error) {
	row := s.db.QueryRowContext(ctx, messageQuery+" WHERE m.id = @id", sql.Named("id", messageID))
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return m, nil
}
