// internal/storage/invites.go

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/invite"
	"github.com/robalobadob/family-connections/internal/repository"
)

// InviteRepository implements invite.Repository for SQLite.
type InviteRepository struct {
	db *DB
}

// NewInviteRepository creates an InviteRepository.
func NewInviteRepository(db *DB) *InviteRepository {
	return &InviteRepository{db: db}
}

const inviteColumns = `token, family_id, family_name, label, status, created_by, created_at, expires_at, last_checked_at, used_by, used_at`

// Create inserts a new invite; a taken token is repository.ErrConflict.
func (r *InviteRepository) Create(ctx context.Context, inv *invite.Invite) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO invites (`+inviteColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.Token, inv.FamilyID, inv.FamilyName, inv.Label, string(inv.Status), inv.CreatedBy,
		formatTime(inv.CreatedAt), formatTimePtr(inv.ExpiresAt), formatTimePtr(inv.LastCheckedAt),
		nullString(inv.UsedBy), formatTimePtr(inv.UsedAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// Get loads an invite by token.
func (r *InviteRepository) Get(ctx context.Context, token string) (*invite.Invite, error) {
	return getInvite(ctx, r.db, token)
}

// ListByFamily returns a family's invites, newest first.
func (r *InviteRepository) ListByFamily(ctx context.Context, familyID string) ([]invite.Invite, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+inviteColumns+`
        FROM invites
        WHERE family_id=?
        ORDER BY created_at DESC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	out := []invite.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Touch records that the token was looked at.
func (r *InviteRepository) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE invites SET last_checked_at=? WHERE token=?`, formatTime(at), token)
	if err != nil {
		return fmt.Errorf("touch invite: %w", err)
	}
	return nil
}

// MarkExpired moves an active invite to expired.
func (r *InviteRepository) MarkExpired(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE invites SET status='expired', last_checked_at=?
        WHERE token=? AND status='active'`, formatTime(at), token)
	if err != nil {
		return false, fmt.Errorf("expire invite: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpireStale expires every active invite whose expiry is before now.
func (r *InviteRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, `
        UPDATE invites SET status='expired', last_checked_at=?
        WHERE status='active' AND expires_at IS NOT NULL AND expires_at < ?`, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("expire stale invites: %w", err)
	}
	return res.RowsAffected()
}

// Redeem consumes the invite and records the membership.
//   - The status flip is conditional (active and not past expiry), so of two
//     concurrent redemptions exactly one succeeds.
//   - The family row is created if missing, otherwise its name is refreshed.
//   - Redeeming into a family the user already belongs to keeps their role.
func (r *InviteRepository) Redeem(ctx context.Context, rd invite.Redemption) (*invite.Invite, error) {
	var out *invite.Invite
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		at := formatTime(rd.At)
		res, err := tx.ExecContext(ctx, `
            UPDATE invites
            SET status='used', used_by=?, used_at=?, last_checked_at=?
            WHERE token=? AND status='active' AND (expires_at IS NULL OR expires_at >= ?)`,
			rd.UserID, at, at, rd.Token, at)
		if err != nil {
			return fmt.Errorf("redeem invite: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrConflict
		}

		inv, err := getInvite(ctx, tx, rd.Token)
		if err != nil {
			return err
		}
		err = upsertFamily(ctx, tx, &family.Family{
			ID:        inv.FamilyID,
			Name:      inv.FamilyName,
			CreatedBy: inv.CreatedBy,
			CreatedAt: rd.At,
			UpdatedAt: rd.At,
		})
		if err != nil {
			return err
		}
		err = upsertMember(ctx, tx, &family.Member{
			FamilyID:    inv.FamilyID,
			UserID:      rd.UserID,
			Email:       rd.Email,
			Username:    rd.Username,
			DisplayName: rd.DisplayName,
			Role:        family.RoleMember,
			InviteToken: inv.Token,
			JoinedAt:    rd.At,
		})
		if err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInvite(ctx context.Context, q rowQuerier, token string) (*invite.Invite, error) {
	row := q.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token=?`, token)
	inv, err := scanInvite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

func scanInvite(s scanner) (*invite.Invite, error) {
	var (
		inv                      invite.Invite
		status, created          string
		expires, checked, usedAt sql.NullString
		usedBy                   sql.NullString
	)
	if err := s.Scan(&inv.Token, &inv.FamilyID, &inv.FamilyName, &inv.Label, &status, &inv.CreatedBy,
		&created, &expires, &checked, &usedBy, &usedAt); err != nil {
		return nil, err
	}
	inv.Status = invite.Status(status)
	inv.CreatedAt = parseTime(created)
	inv.ExpiresAt = parseTimePtr(expires)
	inv.LastCheckedAt = parseTimePtr(checked)
	inv.UsedBy = usedBy.String
	inv.UsedAt = parseTimePtr(usedAt)
	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
