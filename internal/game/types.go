// internal/game/types.go
//
// Core type definitions for the grouping-puzzle game engine.
// Defines:
//   - Status: coarse session state (playing/won/lost).
//   - Session: state for a single in-progress or finished play-through.
//   - Result: the record a player saves to the leaderboard.

package game

import (
	"time"

	"github.com/robalobadob/family-connections/internal/puzzle"
)

// Status represents the state of a play-through.
// Possible values:
//   - "playing": guesses are accepted.
//   - "won":     every group was found.
//   - "lost":    the strike limit was reached.
type Status string

const (
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

const (
	// SelectionSize is the number of cards that make up one guess.
	SelectionSize = 4
	// MaxStrikes ends the session as lost once reached.
	MaxStrikes = 4
)

// Session holds the state of a single play-through of one puzzle.
// It is owned by exactly one player and never merged with another session.
type Session struct {
	ID        string         `json:"id"`        // Unique session identifier (random hex string).
	PuzzleID  string         `json:"puzzleId"`  // Puzzle being played.
	Cards     []string       `json:"cards"`     // Shuffled cards, fixed for the session.
	Selected  []string       `json:"selected"`  // Current selection, at most SelectionSize.
	Solved    []puzzle.Group `json:"solved"`    // Groups found so far, in the order found.
	Attempts  int            `json:"attempts"`  // Submitted guesses, right or wrong.
	Strikes   int            `json:"strikes"`   // Wrong guesses.
	Status    Status         `json:"status"`    // playing/won/lost.
	StartedAt time.Time      `json:"startedAt"` // Set when the session is created.
	EndedAt   *time.Time     `json:"endedAt,omitempty"`

	groups []puzzle.Group // puzzle definition, in definition order
	now    func() time.Time
}

// Outcome describes the effect of one submitted guess.
type Outcome struct {
	Correct bool          `json:"correct"`
	Group   *puzzle.Group `json:"group,omitempty"`
	Status  Status        `json:"status"`
}

// Result is the persisted summary of a finished session. Field names are
// shared with every leaderboard reader and must not change.
type Result struct {
	ID           string    `json:"id"`
	PuzzleID     string    `json:"puzzleId"`
	PlayerName   string    `json:"playerName"`
	Attempts     int       `json:"attempts"`
	Strikes      int       `json:"strikes"`
	Solved       bool      `json:"solved"`
	Duration     int64     `json:"duration"`     // milliseconds
	SolvedGroups int       `json:"solvedGroups"` // number of groups found
	CompletedAt  time.Time `json:"completedAt"`
}
