// internal/storage/results.go

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/repository"
)

const resultColumns = `id, puzzle_id, player_name, attempts, strikes, solved, duration_ms, solved_groups, completed_at`

// ResultRepository stores leaderboard results.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a ResultRepository.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// InsertResult inserts r unless a result with the same id exists.
//   - Respects UNIQUE(id); a repeat insert is ignored (no error).
//   - Reports whether a row was written.
func (r *ResultRepository) InsertResult(ctx context.Context, res *game.Result) (bool, error) {
	out, err := r.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO puzzle_results
            (id, puzzle_id, player_name, attempts, strikes, solved, duration_ms, solved_groups, completed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.PuzzleID, res.PlayerName, res.Attempts, res.Strikes,
		res.Solved, res.Duration, res.SolvedGroups, formatTime(res.CompletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetResult loads one result by id.
func (r *ResultRepository) GetResult(ctx context.Context, id string) (*game.Result, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM puzzle_results WHERE id=?`, id)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// ListResults returns every result of a puzzle in insertion order.
func (r *ResultRepository) ListResults(ctx context.Context, puzzleID string) ([]game.Result, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+resultColumns+`
        FROM puzzle_results
        WHERE puzzle_id=?
        ORDER BY seq ASC`, puzzleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []game.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func scanResult(s scanner) (*game.Result, error) {
	var res game.Result
	var completed string
	if err := s.Scan(&res.ID, &res.PuzzleID, &res.PlayerName, &res.Attempts, &res.Strikes,
		&res.Solved, &res.Duration, &res.SolvedGroups, &completed); err != nil {
		return nil, err
	}
	res.CompletedAt = parseTime(completed)
	return &res, nil
}
