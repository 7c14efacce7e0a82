package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{
		db: db,
	}
}

const userColumns = "id, email, full_name, avatar_url, role, created_at"

func (s *SQLiteUserStore) CreateUser(ctx context.Context, user User) (*UserWithoutSecrets, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	eu, err := s.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("checking if user exists: %w", err)
	}

	if eu != nil {
		return nil, ErrConflictedUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	if user.Role == "" {
		user.Role = RoleStudent
	}

	created := &UserWithoutSecrets{
		ID:        uuid.New().String(),
		Email:     user.Email,
		FullName:  user.FullName,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, avatar_url, password, role, created_at)
		VALUES (@id, @email, @full_name, @avatar_url, @password, @role, @created_at)`,
		sql.Named("id", created.ID), sql.Named("email", created.Email),
		sql.Named("full_name", nullable(created.FullName)), sql.Named("avatar_url", nullable(created.AvatarURL)),
		sql.Named("password", string(hashed)), sql.Named("role", created.Role),
		sql.Named("created_at", created.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return created, nil
}

func (s *SQLiteUserStore) GetUserByID(ctx context.Context, id string) (*UserWithoutSecrets, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
	return scanUser(row)
}

func (s *SQLiteUserStore) GetUserByEmail(ctx context.Context, email string) (*UserWithoutSecrets, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func scanUser(row scanner) (*UserWithoutSecrets, error) {
	user := new(UserWithoutSecrets)
	var fullName, avatarURL sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Email,
		&fullName,
		&avatarURL,
		&user.Role,
		&user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("scanning user: %w", err)
	}
	user.FullName = fullName.String
	user.AvatarURL = avatarURL.String

	return user, nil
}

func (s *SQLiteUserStore) ComparePassword(ctx context.Context, email, password string) (bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT password FROM users WHERE email = ? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email)))

	var storedPassword string

	err := row.Scan(&storedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrInvalidUser
		}

		return false, fmt.Errorf("scanning password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedPassword), []byte(password)); err != nil {
		return false, nil
	}

	return true, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
