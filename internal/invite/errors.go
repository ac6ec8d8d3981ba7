// internal/invite/errors.go

package invite

import "errors"

var (
	// ErrNotFound indicates no invite exists for the token.
	ErrNotFound = errors.New("invite not found")
	// ErrNotActive indicates the invite was already used or expired.
	ErrNotActive = errors.New("invite is no longer active")
	// ErrExpired indicates the invite passed its expiry.
	ErrExpired = errors.New("invite has expired")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid invite request")
)
