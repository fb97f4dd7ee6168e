package auth

import (
	"errors"
	"time"
)

// User is an operator account. PasswordHash is a bcrypt digest and never
// leaves this package.
type User struct {
	ID           int64
	Username     string
	Name         string
	Role         string
	BranchID     int64
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an issued opaque token with its expiry.
type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

var (
	// ErrUserNotFound indicates a missing account.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserDisabled indicates a deactivated account.
	ErrUserDisabled = errors.New("auth: user disabled")
	// ErrInvalidToken indicates an unknown or expired token.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrDuplicateUsername indicates a username collision on create.
	ErrDuplicateUsername = errors.New("auth: username already taken")
)
