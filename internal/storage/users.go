// internal/storage/users.go

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/repository"
)

// UserRepository implements auth.Repository for SQLite.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureUser returns the account for u.Email, inserting u when there is none.
func (r *UserRepository) EnsureUser(ctx context.Context, u *auth.User) (*auth.User, error) {
	_, err := r.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO users (id, email, display_name, is_admin, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.Admin, formatTime(u.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return r.GetUserByEmail(ctx, u.Email)
}

// GetUser loads a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return r.getUser(ctx, `id=?`, id)
}

// GetUserByEmail loads a user by (lower-cased) email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getUser(ctx, `email=?`, email)
}

func (r *UserRepository) getUser(ctx context.Context, where string, arg string) (*auth.User, error) {
	var u auth.User
	var created string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, is_admin, created_at FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.Admin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// SetAdmin updates the admin flag.
func (r *UserRepository) SetAdmin(ctx context.Context, userID string, admin bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_admin=? WHERE id=?`, admin, userID)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateLoginCode inserts a pending code. The partial unique index allows one
// pending code per email.
func (r *UserRepository) CreateLoginCode(ctx context.Context, c *auth.LoginCode) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO login_codes
            (id, email, display_name, code_hash, status, created_by, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.DisplayName, c.CodeHash, string(c.Status), c.CreatedBy,
		formatTime(c.CreatedAt), formatTime(c.ExpiresAt))
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert login code: %w", err)
	}
	return nil
}

// PendingLoginCode returns the pending code for email.
func (r *UserRepository) PendingLoginCode(ctx context.Context, email string) (*auth.LoginCode, error) {
	var (
		c                auth.LoginCode
		status           string
		created, expires string
	)
	err := r.db.QueryRowContext(ctx, `
        SELECT id, email, display_name, code_hash, status, created_by, created_at, expires_at
        FROM login_codes
        WHERE email=? AND status='pending'`, email,
	).Scan(&c.ID, &c.Email, &c.DisplayName, &c.CodeHash, &status, &c.CreatedBy, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get login code: %w", err)
	}
	c.Status = auth.CodeStatus(status)
	c.CreatedAt, c.ExpiresAt = parseTime(created), parseTime(expires)
	return &c, nil
}

// UseLoginCode consumes a pending code.
func (r *UserRepository) UseLoginCode(ctx context.Context, id, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE login_codes SET status='used', user_id=?, used_at=?
        WHERE id=? AND status='pending'`, userID, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("use login code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}
