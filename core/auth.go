package core

import (
	"context"
	"errors"
	"time"
)

type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CanManageCourses reports whether the session may create courses.
func (s Session) CanManageCourses() bool {
	return s.Role == RoleTutor || s.Role == RoleAdmin
}

var (
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AuthStore interface {
	// NewSession signs a token for the user with the given credentials.
	// It returns ErrBadCredentials when the email or password does not match.
	NewSession(ctx context.Context, email, password string) (*Session, error)

	DestroySession(ctx context.Context, session Session) error

	// Session resolves a token. It returns ErrUnauthenticated for expired,
	// invalid or revoked tokens.
	Session(ctx context.Context, token string) (*Session, error)
}
