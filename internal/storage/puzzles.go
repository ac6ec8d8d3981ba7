// internal/storage/puzzles.go

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/repository"
)

// PuzzleRepository implements puzzle.Repository for SQLite.
type PuzzleRepository struct {
	db *DB
}

// NewPuzzleRepository creates a PuzzleRepository.
func NewPuzzleRepository(db *DB) *PuzzleRepository {
	return &PuzzleRepository{db: db}
}

const puzzleColumns = `id, family_id, title, description, status, groups_json, drops_at, created_by, created_at, updated_at`

// Create inserts a new puzzle.
func (r *PuzzleRepository) Create(ctx context.Context, p *puzzle.Puzzle) error {
	groups, err := json.Marshal(p.Groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO puzzles (`+puzzleColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FamilyID, p.Title, p.Description, string(p.Status), string(groups),
		formatTimePtr(&p.DropsAt), p.CreatedBy, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("family %s: %w", p.FamilyID, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert puzzle: %w", err)
	}
	return nil
}

// Get loads a puzzle by id.
func (r *PuzzleRepository) Get(ctx context.Context, id string) (*puzzle.Puzzle, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+puzzleColumns+` FROM puzzles WHERE id=?`, id)
	p, err := scanPuzzle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get puzzle: %w", err)
	}
	return p, nil
}

// Update overwrites the editable fields while the stored status equals
// expected.
func (r *PuzzleRepository) Update(ctx context.Context, p *puzzle.Puzzle, expected puzzle.Status) error {
	groups, err := json.Marshal(p.Groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
        UPDATE puzzles
        SET title=?, description=?, status=?, groups_json=?, drops_at=?, updated_at=?
        WHERE id=? AND status=?`,
		p.Title, p.Description, string(p.Status), string(groups),
		formatTimePtr(&p.DropsAt), formatTime(p.UpdatedAt), p.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update puzzle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM puzzles WHERE id=?`, p.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}
	return nil
}

// ListByFamily returns a family's puzzles, newest first.
func (r *PuzzleRepository) ListByFamily(ctx context.Context, familyID string) ([]puzzle.Puzzle, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+puzzleColumns+`
        FROM puzzles
        WHERE family_id=?
        ORDER BY created_at DESC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list puzzles: %w", err)
	}
	defer rows.Close()

	out := []puzzle.Puzzle{}
	for rows.Next() {
		p, err := scanPuzzle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPuzzle(s scanner) (*puzzle.Puzzle, error) {
	var (
		p                    puzzle.Puzzle
		status, groups       string
		dropsAt              sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&p.ID, &p.FamilyID, &p.Title, &p.Description, &status, &groups,
		&dropsAt, &p.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(groups), &p.Groups); err != nil {
		return nil, fmt.Errorf("decode groups of %s: %w", p.ID, err)
	}
	p.Status = puzzle.Status(status)
	if t := parseTimePtr(dropsAt); t != nil {
		p.DropsAt = *t
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
