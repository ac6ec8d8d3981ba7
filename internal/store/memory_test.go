package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/repository"
)

func newSession() *game.Session {
	return game.New(&puzzle.Puzzle{
		ID: "p1",
		Groups: []puzzle.Group{
			{Title: "Capitals", Cards: []string{"Rome", "Paris", "Lisbon", "London"}},
		},
	})
}

func TestMemory_SaveGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	s := newSession()
	require.NoError(t, m.Save(ctx, s))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)

	// Mutating the copy does not leak into the store.
	require.NoError(t, got.ToggleSelect("Rome"))
	again, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, again.Selected)
}

func TestMemory_Update(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s := newSession()
	require.NoError(t, m.Save(ctx, s))

	got, err := m.Update(ctx, s.ID, func(s *game.Session) error { return s.ToggleSelect("Rome") })
	require.NoError(t, err)
	require.Equal(t, []string{"Rome"}, got.Selected)

	boom := errors.New("boom")
	_, err = m.Update(ctx, s.ID, func(s *game.Session) error {
		_ = s.ToggleSelect("Paris")
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Rome"}, stored.Selected)

	_, err = m.Update(ctx, "missing", func(*game.Session) error { return nil })
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMemory_Evict(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	old := newSession()
	require.NoError(t, m.Save(ctx, old))

	now = now.Add(2 * time.Hour)
	fresh := newSession()
	require.NoError(t, m.Save(ctx, fresh))

	require.Equal(t, 1, m.Evict(time.Hour))
	require.Equal(t, 1, m.Len())
	_, err := m.Get(ctx, old.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
