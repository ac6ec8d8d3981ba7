// internal/auth/user.go
//
// Accounts and admin-issued login codes.
//   - User: one account per email address, created on first sign-in.
//   - LoginCode: an 8-character code an admin hands to a relative who cannot
//     use the magic-link flow; stored only as a bcrypt hash.

package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("admin access required")
	ErrInvalidLink  = errors.New("sign-in link is invalid or expired")
	ErrInvalidCode  = errors.New("invalid code or email")
	ErrCodeExpired  = errors.New("this code has expired")
	ErrCodePending  = errors.New("a pending code already exists for this email")
	ErrUserExists   = errors.New("a user with this email already exists")
	ErrInvalidInput = errors.New("invalid auth request")
)

// User is an account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Admin       bool      `json:"admin"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CodeStatus is the state of a login code.
type CodeStatus string

const (
	CodePending CodeStatus = "pending"
	CodeUsed    CodeStatus = "used"
)

// LoginCode is the stored form of an admin-issued code.
type LoginCode struct {
	ID          string
	Email       string
	DisplayName string
	CodeHash    string
	Status      CodeStatus
	CreatedBy   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
	UserID      string
}

// Repository persists users and login codes.
type Repository interface {
	// EnsureUser returns the user with u.Email, inserting u when none exists.
	EnsureUser(ctx context.Context, u *User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetAdmin(ctx context.Context, userID string, admin bool) error

	// CreateLoginCode inserts c and returns repository.ErrConflict when the
	// email already has a pending code.
	CreateLoginCode(ctx context.Context, c *LoginCode) error
	PendingLoginCode(ctx context.Context, email string) (*LoginCode, error)
	// UseLoginCode moves a pending code to used; repository.ErrConflict when
	// it is no longer pending.
	UseLoginCode(ctx context.Context, id, userID string, at time.Time) error
}
