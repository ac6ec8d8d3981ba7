package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robalobadob/family-connections/internal/puzzle"
)

func testPuzzle() *puzzle.Puzzle {
	return &puzzle.Puzzle{
		ID: "p1",
		Groups: []puzzle.Group{
			{Title: "Capitals", Hint: "cities", Cards: []string{"Rome", "Paris", "Lisbon", "London"}},
			{Title: "Dishes", Cards: []string{"Lasagna", "Empanadas", "Curry", "Gumbo"}},
			{Title: "Rivers", Cards: []string{"Nile", "Amazon", "Danube", "Thames"}},
			{Title: "Planets", Cards: []string{"Mars", "Venus", "Saturn", "Jupiter"}},
		},
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newSession(t *testing.T) (*Session, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := New(testPuzzle(), WithClock(c.now), WithRand(rand.New(rand.NewPCG(1, 2))))
	return s, c
}

func selectAll(t *testing.T, s *Session, cards ...string) {
	t.Helper()
	for _, c := range cards {
		require.NoError(t, s.ToggleSelect(c))
	}
}

func TestNew_ShufflesAllCards(t *testing.T) {
	s, _ := newSession(t)
	require.Len(t, s.Cards, 16)
	require.ElementsMatch(t, testPuzzle().Cards(), s.Cards)
	require.Equal(t, StatusPlaying, s.Status)
	require.Empty(t, s.Selected)
	require.Empty(t, s.Solved)
	require.Nil(t, s.EndedAt)
	require.NotEmpty(t, s.ID)
}

func TestNew_SkipsBlankCards(t *testing.T) {
	p := testPuzzle()
	p.Groups[3].Cards[2] = "  "
	s := New(p)
	require.Len(t, s.Cards, 15)
	require.NotContains(t, s.Cards, "")
}

func TestToggleSelect(t *testing.T) {
	s, _ := newSession(t)

	selectAll(t, s, "Rome", "Nile", "Mars", "Curry")
	require.NoError(t, s.ToggleSelect("Venus"))
	require.Len(t, s.Selected, SelectionSize)
	require.NotContains(t, s.Selected, "Venus")

	require.NoError(t, s.ToggleSelect("Nile"))
	require.Equal(t, []string{"Rome", "Mars", "Curry"}, s.Selected)

	require.ErrorIs(t, s.ToggleSelect("Oslo"), ErrUnknownCard)
	require.Len(t, s.Selected, 3)
}

func TestSubmitGuess_CorrectGroup(t *testing.T) {
	s, _ := newSession(t)
	selectAll(t, s, "London", "Rome", "Lisbon", "Paris")

	out, err := s.SubmitGuess()
	require.NoError(t, err)
	require.True(t, out.Correct)
	require.Equal(t, "Capitals", out.Group.Title)
	require.Len(t, s.Solved, 1)
	require.Equal(t, 1, s.Attempts)
	require.Equal(t, 0, s.Strikes)
	require.Empty(t, s.Selected)
	require.Len(t, s.Remaining(), 12)

	require.ErrorIs(t, s.ToggleSelect("Rome"), ErrUnknownCard)
}

func TestSubmitGuess_MixedSelectionIsStrike(t *testing.T) {
	s, _ := newSession(t)
	selectAll(t, s, "Rome", "Paris", "Lasagna", "Empanadas")

	out, err := s.SubmitGuess()
	require.NoError(t, err)
	require.False(t, out.Correct)
	require.Nil(t, out.Group)
	require.Equal(t, 1, s.Attempts)
	require.Equal(t, 1, s.Strikes)
	require.Empty(t, s.Solved)
	require.Empty(t, s.Selected)
}

func TestSubmitGuess_IncompleteSelection(t *testing.T) {
	s, _ := newSession(t)
	selectAll(t, s, "Rome", "Paris")

	_, err := s.SubmitGuess()
	require.ErrorIs(t, err, ErrIncompleteSelection)
	require.Equal(t, 0, s.Attempts)
	require.Len(t, s.Selected, 2)
}

func TestSubmitGuess_WinInAnyOrder(t *testing.T) {
	s, c := newSession(t)
	p := testPuzzle()
	order := []int{2, 0, 3, 1}
	for i, gi := range order {
		c.t = c.t.Add(10 * time.Second)
		selectAll(t, s, p.Groups[gi].Cards...)
		out, err := s.SubmitGuess()
		require.NoError(t, err)
		require.True(t, out.Correct)
		if i < len(order)-1 {
			require.Equal(t, StatusPlaying, out.Status)
		}
	}

	require.Equal(t, StatusWon, s.Status)
	require.Len(t, s.Solved, 4)
	require.Equal(t, 0, s.Strikes)
	require.Equal(t, 4, s.Attempts)
	require.NotNil(t, s.EndedAt)
	require.Equal(t, "Rivers", s.Solved[0].Title)
	require.Empty(t, s.Remaining())
}

func TestSubmitGuess_LoseAfterFourStrikes(t *testing.T) {
	s, _ := newSession(t)
	for i := 0; i < MaxStrikes; i++ {
		selectAll(t, s, "Rome", "Nile", "Mars", "Curry")
		_, err := s.SubmitGuess()
		require.NoError(t, err)
	}
	require.Equal(t, StatusLost, s.Status)
	require.Equal(t, MaxStrikes, s.Strikes)
	require.Equal(t, MaxStrikes, s.Attempts)
	require.NotNil(t, s.EndedAt)

	// Nothing moves once the game is over.
	require.ErrorIs(t, s.ToggleSelect("Rome"), ErrNotPlaying)
	_, err := s.SubmitGuess()
	require.ErrorIs(t, err, ErrNotPlaying)
	require.Equal(t, MaxStrikes, s.Attempts)
	require.Equal(t, StatusLost, s.Status)
}

func TestSubmitGuess_ThreeStrikesThenWin(t *testing.T) {
	s, _ := newSession(t)
	for i := 0; i < MaxStrikes-1; i++ {
		selectAll(t, s, "Rome", "Paris", "Lisbon", "Nile")
		_, err := s.SubmitGuess()
		require.NoError(t, err)
	}
	for _, g := range testPuzzle().Groups {
		selectAll(t, s, g.Cards...)
		_, err := s.SubmitGuess()
		require.NoError(t, err)
	}
	require.Equal(t, StatusWon, s.Status)
	require.Equal(t, 3, s.Strikes)
	require.Equal(t, 7, s.Attempts)
}

func TestResult(t *testing.T) {
	s, c := newSession(t)

	_, err := s.Result("Nonna")
	require.ErrorIs(t, err, ErrNotFinished)

	c.t = c.t.Add(90 * time.Second)
	for _, g := range testPuzzle().Groups {
		selectAll(t, s, g.Cards...)
		_, err := s.SubmitGuess()
		require.NoError(t, err)
	}

	_, err = s.Result("   ")
	require.ErrorIs(t, err, ErrPlayerNameRequired)

	r, err := s.Result(" Nonna ")
	require.NoError(t, err)
	require.Equal(t, s.ID, r.ID)
	require.Equal(t, "p1", r.PuzzleID)
	require.Equal(t, "Nonna", r.PlayerName)
	require.True(t, r.Solved)
	require.Equal(t, 4, r.SolvedGroups)
	require.Equal(t, int64(90_000), r.Duration)
	require.Equal(t, 4, r.Attempts)
}

func TestClone_IsIndependent(t *testing.T) {
	s, _ := newSession(t)
	selectAll(t, s, "Rome")
	cp := s.Clone()
	require.NoError(t, cp.ToggleSelect("Paris"))
	require.Equal(t, []string{"Rome"}, s.Selected)
	require.Equal(t, []string{"Rome", "Paris"}, cp.Selected)
}
