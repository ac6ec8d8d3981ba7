package puzzle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robalobadob/family-connections/internal/repository"
)

type memRepo struct {
	byID map[string]Puzzle
}

func newMemRepo() *memRepo { return &memRepo{byID: map[string]Puzzle{}} }

func (m *memRepo) Create(_ context.Context, p *Puzzle) error {
	if _, ok := m.byID[p.ID]; ok {
		return repository.ErrConflict
	}
	m.byID[p.ID] = *p
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*Puzzle, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) Update(_ context.Context, p *Puzzle, expected Status) error {
	cur, ok := m.byID[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected {
		return repository.ErrConflict
	}
	m.byID[p.ID] = *p
	return nil
}

func (m *memRepo) ListByFamily(_ context.Context, familyID string) ([]Puzzle, error) {
	var out []Puzzle
	for _, p := range m.byID {
		if p.FamilyID == familyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestService_CreateDraftDefaults(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo())

	p, err := svc.Create(ctx, "f1", "u1", Draft{Groups: samplePuzzle().Groups})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, StatusDraft, p.Status)
	require.Equal(t, defaultTitle, p.Title)

	_, err = svc.Create(ctx, "", "u1", Draft{})
	require.ErrorIs(t, err, ErrInvalidPuzzle)
}

func TestService_PublishFlow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(newMemRepo()).WithClock(fixedClock(now))

	p, err := svc.Create(ctx, "f1", "u1", Draft{Title: "Sunday", Groups: samplePuzzle().Groups[:3]})
	require.NoError(t, err)

	_, err = svc.Publish(ctx, p.ID)
	require.ErrorIs(t, err, ErrInvalidPuzzle)

	_, err = svc.Update(ctx, p.ID, Draft{Title: "Sunday", Groups: samplePuzzle().Groups})
	require.NoError(t, err)

	published, err := svc.Publish(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, published.Status)
	require.Equal(t, now, published.DropsAt)

	_, err = svc.Publish(ctx, p.ID)
	require.ErrorIs(t, err, ErrAlreadyPublished)

	_, err = svc.Update(ctx, p.ID, Draft{Title: "changed"})
	require.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestService_Playable(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	svc := NewService(repo).WithClock(fixedClock(now))

	_, err := svc.Playable(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	p, err := svc.Create(ctx, "f1", "u1", Draft{Groups: samplePuzzle().Groups, DropsAt: now.Add(time.Hour)})
	require.NoError(t, err)

	_, err = svc.Playable(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotPublished)

	_, err = svc.Publish(ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.Playable(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotYetAvailable)

	svc.WithClock(fixedClock(now.Add(2 * time.Hour)))
	got, err := svc.Playable(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
}

func TestShareURL(t *testing.T) {
	require.Equal(t, "https://fam.example/play/abc", ShareURL("https://fam.example/", "abc"))
}
