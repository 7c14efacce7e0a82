package core

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// User is the registration input for an account.
type User struct {
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Password  string `json:"password" validate:"required,min=6"`
	Role      Role   `json:"role,omitempty" validate:"omitempty,oneof=student tutor admin"`
}

func (u *User) Validate() error {
	return validate.Struct(u)
}

type UserWithoutSecrets struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the identity the chat layer acts as.
type Profile struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (u UserWithoutSecrets) Profile() Profile {
	return Profile{ID: u.ID, FullName: u.FullName, AvatarURL: u.AvatarURL}
}

var (
	ErrConflictedUser = errors.New("user already exists")
	// ErrInvalidUser is returned when a user is not found or is invalid.
	ErrInvalidUser = errors.New("invalid user")
)

type UserStore interface {
	// CreateUser registers a user and returns it without its password.
	// If the email is taken, it returns ErrConflictedUser.
	CreateUser(ctx context.Context, user User) (*UserWithoutSecrets, error)

	// GetUserByID returns nil when the user does not exist.
	GetUserByID(ctx context.Context, id string) (*UserWithoutSecrets, error)

	// GetUserByEmail returns nil when the user does not exist.
	GetUserByEmail(ctx context.Context, email string) (*UserWithoutSecrets, error)

	ComparePassword(ctx context.Context, email, password string) (bool, error)
}
