// internal/storage/families.go

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/repository"
)

// FamilyRepository implements family.Repository for SQLite.
type FamilyRepository struct {
	db *DB
}

// NewFamilyRepository creates a FamilyRepository.
func NewFamilyRepository(db *DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// CreateWithOwner inserts the family and its owner in one transaction.
func (r *FamilyRepository) CreateWithOwner(ctx context.Context, f *family.Family, owner *family.Member) error {
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO families (id, name, created_by, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?)`,
			f.ID, f.Name, f.CreatedBy, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert family: %w", err)
		}
		return upsertMember(ctx, tx, owner)
	})
}

// Get loads a family by id.
func (r *FamilyRepository) Get(ctx context.Context, id string) (*family.Family, error) {
	var f family.Family
	var created, updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at, updated_at FROM families WHERE id=?`, id,
	).Scan(&f.ID, &f.Name, &f.CreatedBy, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	f.CreatedAt, f.UpdatedAt = parseTime(created), parseTime(updated)
	return &f, nil
}

const memberColumns = `family_id, user_id, email, username, display_name, role, invite_token, joined_at`

// GetMember loads one membership.
func (r *FamilyRepository) GetMember(ctx context.Context, familyID, userID string) (*family.Member, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM family_members WHERE family_id=? AND user_id=?`, familyID, userID)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers returns a family's members in join order.
func (r *FamilyRepository) ListMembers(ctx context.Context, familyID string) ([]family.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM family_members WHERE family_id=? ORDER BY joined_at ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := []family.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListForUser returns the families a user belongs to.
func (r *FamilyRepository) ListForUser(ctx context.Context, userID string) ([]family.Family, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT f.id, f.name, f.created_by, f.created_at, f.updated_at
        FROM families f
        JOIN family_members m ON m.family_id = f.id
        WHERE m.user_id=?
        ORDER BY f.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	out := []family.Family{}
	for rows.Next() {
		var f family.Family
		var created, updated string
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedBy, &created, &updated); err != nil {
			return nil, err
		}
		f.CreatedAt, f.UpdatedAt = parseTime(created), parseTime(updated)
		out = append(out, f)
	}
	return out, rows.Err()
}

// upsertFamily creates the family or refreshes its name.
func upsertFamily(ctx context.Context, tx *sql.Tx, f *family.Family) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO families (id, name, created_by, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name=excluded.name, updated_at=excluded.updated_at`,
		f.ID, f.Name, f.CreatedBy, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert family: %w", err)
	}
	return nil
}

// upsertMember creates the membership or refreshes its profile fields. An
// existing role is kept.
func upsertMember(ctx context.Context, tx *sql.Tx, m *family.Member) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO family_members
            (family_id, user_id, email, username, display_name, role, invite_token, joined_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(family_id, user_id) DO UPDATE SET
            email=excluded.email,
            username=excluded.username,
            display_name=excluded.display_name,
            invite_token=excluded.invite_token,
            updated_at=excluded.updated_at`,
		m.FamilyID, m.UserID, m.Email, m.Username, m.DisplayName, string(m.Role),
		m.InviteToken, formatTime(m.JoinedAt), formatTime(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func scanMember(s scanner) (*family.Member, error) {
	var m family.Member
	var role, joined string
	if err := s.Scan(&m.FamilyID, &m.UserID, &m.Email, &m.Username, &m.DisplayName,
		&role, &m.InviteToken, &joined); err != nil {
		return nil, err
	}
	m.Role = family.Role(role)
	m.JoinedAt = parseTime(joined)
	return &m, nil
}
