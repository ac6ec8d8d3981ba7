package puzzle

import "errors"

var (
	// ErrNotFound indicates the puzzle doesn't exist.
	ErrNotFound = errors.New("puzzle not found")
	// ErrInvalidPuzzle wraps every publish-time validation failure.
	ErrInvalidPuzzle = errors.New("invalid puzzle")
	// ErrNotPublished indicates a draft was requested for play.
	ErrNotPublished = errors.New("puzzle is not published yet")
	// ErrAlreadyPublished indicates an edit or publish on a published puzzle.
	ErrAlreadyPublished = errors.New("puzzle is already published")
	// ErrNotYetAvailable indicates the puzzle drops later.
	ErrNotYetAvailable = errors.New("puzzle is not available yet")
)
