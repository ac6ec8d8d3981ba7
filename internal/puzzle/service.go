// internal/puzzle/service.go
//
// Puzzle authoring: drafts, edits and the one-way publish.

package puzzle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/repository"
)

const defaultTitle = "Family Connections Puzzle"

// Repository provides persistence for puzzles.
type Repository interface {
	Create(ctx context.Context, p *Puzzle) error
	Get(ctx context.Context, id string) (*Puzzle, error)
	// Update overwrites the puzzle only while its stored status equals
	// expected; otherwise it returns repository.ErrConflict.
	Update(ctx context.Context, p *Puzzle, expected Status) error
	ListByFamily(ctx context.Context, familyID string) ([]Puzzle, error)
}

// Service handles puzzle authoring and lookup.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new puzzle service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Draft holds the editable fields of a puzzle.
type Draft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Groups      []Group   `json:"groups"`
	DropsAt     time.Time `json:"dropsAt"`
}

func (d Draft) check() error {
	if len(d.Groups) > GroupCount {
		return fmt.Errorf("%w: at most %d groups", ErrInvalidPuzzle, GroupCount)
	}
	for _, g := range d.Groups {
		if len(g.Cards) > CardsPerGroup {
			return fmt.Errorf("%w: at most %d cards per group", ErrInvalidPuzzle, CardsPerGroup)
		}
	}
	return nil
}

// Create stores a new draft puzzle for a family.
func (s *Service) Create(ctx context.Context, familyID, createdBy string, d Draft) (*Puzzle, error) {
	if strings.TrimSpace(familyID) == "" || strings.TrimSpace(createdBy) == "" {
		return nil, fmt.Errorf("%w: family and author are required", ErrInvalidPuzzle)
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Puzzle{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		Title:       d.Title,
		Description: d.Description,
		Status:      StatusDraft,
		Groups:      d.Groups,
		DropsAt:     d.DropsAt,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Normalize()
	if p.Title == "" {
		p.Title = defaultTitle
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating puzzle: %w", err)
	}
	log.Info().Str("puzzleId", p.ID).Str("familyId", familyID).Msg("puzzle drafted")
	return p, nil
}

// Get fetches a puzzle by ID.
func (s *Service) Get(ctx context.Context, id string) (*Puzzle, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting puzzle: %w", err)
	}
	return p, nil
}

// List returns the puzzles of a family.
func (s *Service) List(ctx context.Context, familyID string) ([]Puzzle, error) {
	out, err := s.repo.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("listing puzzles: %w", err)
	}
	return out, nil
}

// Update replaces the editable fields of a draft.
func (s *Service) Update(ctx context.Context, id string, d Draft) (*Puzzle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsPublished() {
		return nil, ErrAlreadyPublished
	}
	p.Title, p.Description, p.Groups, p.DropsAt = d.Title, d.Description, d.Groups, d.DropsAt
	p.Normalize()
	if p.Title == "" {
		p.Title = defaultTitle
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p, StatusDraft); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyPublished
		}
		return nil, fmt.Errorf("updating puzzle: %w", err)
	}
	return p, nil
}

// Publish validates a draft and moves it to published. The transition is
// one-way; a missing drop time defaults to now.
func (s *Service) Publish(ctx context.Context, id string) (*Puzzle, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsPublished() {
		return nil, ErrAlreadyPublished
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p.Status = StatusPublished
	p.UpdatedAt = now
	if p.DropsAt.IsZero() {
		p.DropsAt = now
	}
	if err := s.repo.Update(ctx, p, StatusDraft); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyPublished
		}
		return nil, fmt.Errorf("publishing puzzle: %w", err)
	}
	log.Info().Str("puzzleId", p.ID).Msg("puzzle published")
	return p, nil
}

// Playable loads a puzzle for public play: it must exist, be published and
// have dropped.
func (s *Service) Playable(ctx context.Context, id string) (*Puzzle, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsPublished() {
		return nil, ErrNotPublished
	}
	if s.now().Before(p.DropsAt) {
		return nil, ErrNotYetAvailable
	}
	return p, nil
}

// ShareURL builds the public play link for a puzzle.
func ShareURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/play/" + id
}
