// internal/game/engine.go
//
// Core game engine for a single grouping-puzzle session.
// Responsibilities:
//   - Create new sessions with a shuffled 4x4 grid.
//   - Track the current selection (capped at four cards).
//   - Match submitted guesses against the puzzle groups.
//   - Track state transitions: playing → won/lost.
//   - Build the leaderboard result once the session is over.
//
// Notes:
//   - The engine never validates the puzzle shape; publish-time validation
//     in the puzzle package guarantees 4 groups × 4 unique cards.
//   - randomID() is a compact hex identifier for correlating server state.
package game

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/robalobadob/family-connections/internal/puzzle"
)

var (
	ErrNotPlaying          = errors.New("game finished")
	ErrUnknownCard         = errors.New("card is not on the board")
	ErrIncompleteSelection = errors.New("select four cards to submit")
	ErrNotFinished         = errors.New("game is still in progress")
	ErrPlayerNameRequired  = errors.New("player name is required")
)

// Option customizes a new session.
type Option func(*Session, *options)

type options struct {
	shuffle func(n int, swap func(i, j int))
}

// WithClock sets the time source used for start/end timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session, _ *options) { s.now = now }
}

// WithRand shuffles the grid with r instead of the global source.
func WithRand(r *rand.Rand) Option {
	return func(_ *Session, o *options) { o.shuffle = r.Shuffle }
}

// New starts a session for p. All non-empty trimmed cards of every group are
// flattened and shuffled once; the order is kept until the session ends.
func New(p *puzzle.Puzzle, opts ...Option) *Session {
	s := &Session{
		ID:       randomID(),
		PuzzleID: p.ID,
		Selected: []string{},
		Solved:   []puzzle.Group{},
		Status:   StatusPlaying,
		groups:   slices.Clone(p.Groups),
		now:      time.Now,
	}
	o := &options{shuffle: rand.Shuffle}
	for _, opt := range opts {
		opt(s, o)
	}

	s.Cards = p.Cards()
	o.shuffle(len(s.Cards), func(i, j int) { s.Cards[i], s.Cards[j] = s.Cards[j], s.Cards[i] })
	s.StartedAt = s.now()
	return s
}

// ToggleSelect adds card to the selection, or removes it when already
// selected. Selecting a fifth card is silently ignored.
func (s *Session) ToggleSelect(card string) error {
	if s.Status != StatusPlaying {
		return ErrNotPlaying
	}
	card = strings.TrimSpace(card)
	if i := slices.Index(s.Selected, card); i >= 0 {
		s.Selected = slices.Delete(s.Selected, i, i+1)
		return nil
	}
	if !slices.Contains(s.Remaining(), card) {
		return ErrUnknownCard
	}
	if len(s.Selected) < SelectionSize {
		s.Selected = append(s.Selected, card)
	}
	return nil
}

// SubmitGuess checks the four selected cards against the puzzle groups.
// Returns: the outcome of the guess, or an error when the guess was not
// accepted (state is then unchanged).
//
// State transitions:
//   - Match: the group is marked solved; all groups solved → won.
//   - Miss: one strike; MaxStrikes reached → lost.
//
// Every accepted guess counts as one attempt and clears the selection.
func (s *Session) SubmitGuess() (Outcome, error) {
	if s.Status != StatusPlaying {
		return Outcome{Status: s.Status}, ErrNotPlaying
	}
	if len(s.Selected) != SelectionSize {
		return Outcome{Status: s.Status}, ErrIncompleteSelection
	}

	match := s.matchGroup()
	s.Attempts++
	s.Selected = []string{}

	if match == nil {
		s.Strikes++
		if s.Strikes >= MaxStrikes {
			s.finish(StatusLost)
		}
		return Outcome{Correct: false, Status: s.Status}, nil
	}

	s.Solved = append(s.Solved, *match)
	if len(s.Solved) == len(s.groups) {
		s.finish(StatusWon)
	}
	return Outcome{Correct: true, Group: match, Status: s.Status}, nil
}

// matchGroup returns the first unsolved group, in definition order, whose
// playable cards are exactly the current selection.
func (s *Session) matchGroup() *puzzle.Group {
	for _, g := range s.groups {
		cards := g.PlayableCards()
		if len(cards) != SelectionSize || s.isSolved(g.Title, cards) {
			continue
		}
		if sameSet(cards, s.Selected) {
			return &puzzle.Group{Title: g.Title, Hint: g.Hint, Cards: cards}
		}
	}
	return nil
}

func (s *Session) isSolved(title string, cards []string) bool {
	for _, g := range s.Solved {
		if g.Title == title && slices.Equal(g.Cards, cards) {
			return true
		}
	}
	return false
}

func (s *Session) finish(st Status) {
	end := s.now()
	s.Status = st
	s.EndedAt = &end
}

// Remaining returns the cards still on the board, in shuffled order.
func (s *Session) Remaining() []string {
	out := make([]string, 0, len(s.Cards))
	for _, c := range s.Cards {
		solved := false
		for _, g := range s.Solved {
			if slices.Contains(g.Cards, c) {
				solved = true
				break
			}
		}
		if !solved {
			out = append(out, c)
		}
	}
	return out
}

// Finished reports whether the session reached won or lost.
func (s *Session) Finished() bool { return s.Status != StatusPlaying }

// Result builds the leaderboard record for a finished session. The result
// shares the session ID so saving it twice stores it once.
func (s *Session) Result(playerName string) (*Result, error) {
	if !s.Finished() || s.EndedAt == nil {
		return nil, ErrNotFinished
	}
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return nil, ErrPlayerNameRequired
	}
	d := s.EndedAt.Sub(s.StartedAt).Milliseconds()
	if d < 0 {
		d = 0
	}
	return &Result{
		ID:           s.ID,
		PuzzleID:     s.PuzzleID,
		PlayerName:   playerName,
		Attempts:     s.Attempts,
		Strikes:      s.Strikes,
		Solved:       s.Status == StatusWon,
		Duration:     d,
		SolvedGroups: len(s.Solved),
		CompletedAt:  s.now().UTC(),
	}, nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Cards = slices.Clone(s.Cards)
	cp.Selected = slices.Clone(s.Selected)
	cp.Solved = slices.Clone(s.Solved)
	cp.groups = slices.Clone(s.groups)
	if s.EndedAt != nil {
		end := *s.EndedAt
		cp.EndedAt = &end
	}
	return &cp
}

// sameSet reports whether a and b hold the same distinct strings.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		if _, ok := set[x]; !ok {
			return false
		}
		delete(set, x)
	}
	return len(set) == 0
}

// randomID returns a compact 16‑hex‑char identifier.
// Collisions are extremely unlikely given crypto/rand entropy.
func randomID() string {
	var b [8]byte
	_, _ = crand.Read(b[:])
	return hex.EncodeToString(b[:])
}
