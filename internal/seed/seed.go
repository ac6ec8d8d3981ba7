// internal/seed/seed.go
//
// Demo data for a fresh install.
//
// Source:
//   - the file named by config seed.file (SEED_FILE), when set;
//   - otherwise the embedded assets/seed/demo.json.
//
// Apply creates the owner account, the family with that owner and one
// published puzzle. Records that already exist are left untouched, so it is
// safe to run on every start.

package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/assets"
	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/repository"
)

// Data is the seed document.
type Data struct {
	Family struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"family"`
	Owner struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"owner"`
	Puzzle struct {
		ID          string         `json:"id"`
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Groups      []puzzle.Group `json:"groups"`
	} `json:"puzzle"`
}

var (
	embeddedOnce sync.Once
	embedded     *Data
	embeddedErr  error
)

// Embedded returns the built-in demo seed, parsed once.
func Embedded() (*Data, error) {
	embeddedOnce.Do(func() {
		raw, err := assets.DemoSeed()
		if err != nil {
			embeddedErr = err
			return
		}
		embedded, embeddedErr = parse(raw)
	})
	return embedded, embeddedErr
}

// Load reads the seed from path, or the embedded seed when path is empty.
func Load(path string) (*Data, error) {
	if strings.TrimSpace(path) == "" {
		return Embedded()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if d.Family.ID == "" || d.Puzzle.ID == "" || d.Owner.Email == "" {
		return nil, errors.New("seed: family.id, owner.email and puzzle.id are required")
	}
	d.Owner.Email = strings.ToLower(strings.TrimSpace(d.Owner.Email))
	return &d, nil
}

// Users is the part of the account store the seed needs.
type Users interface {
	EnsureUser(ctx context.Context, u *auth.User) (*auth.User, error)
}

// Families is the part of the family store the seed needs.
type Families interface {
	Get(ctx context.Context, id string) (*family.Family, error)
	CreateWithOwner(ctx context.Context, f *family.Family, owner *family.Member) error
}

// Puzzles is the part of the puzzle store the seed needs.
type Puzzles interface {
	Get(ctx context.Context, id string) (*puzzle.Puzzle, error)
	Create(ctx context.Context, p *puzzle.Puzzle) error
}

// Result reports what Apply created.
type Result struct {
	OwnerID       string
	FamilyCreated bool
	PuzzleCreated bool
}

// Apply writes the seed.
func Apply(ctx context.Context, d *Data, users Users, families Families, puzzles Puzzles, now time.Time) (*Result, error) {
	now = now.UTC()
	owner, err := users.EnsureUser(ctx, &auth.User{
		ID:          uuid.NewString(),
		Email:       d.Owner.Email,
		DisplayName: d.Owner.DisplayName,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("seed owner: %w", err)
	}
	res := &Result{OwnerID: owner.ID}

	if _, err := families.Get(ctx, d.Family.ID); errors.Is(err, repository.ErrNotFound) {
		err := families.CreateWithOwner(ctx,
			&family.Family{ID: d.Family.ID, Name: d.Family.Name, CreatedBy: owner.ID, CreatedAt: now, UpdatedAt: now},
			&family.Member{
				FamilyID:    d.Family.ID,
				UserID:      owner.ID,
				Email:       owner.Email,
				DisplayName: owner.DisplayName,
				Role:        family.RoleOwner,
				JoinedAt:    now,
			})
		if err != nil {
			return nil, fmt.Errorf("seed family: %w", err)
		}
		res.FamilyCreated = true
	} else if err != nil {
		return nil, fmt.Errorf("seed family: %w", err)
	}

	if _, err := puzzles.Get(ctx, d.Puzzle.ID); errors.Is(err, repository.ErrNotFound) {
		p := &puzzle.Puzzle{
			ID:          d.Puzzle.ID,
			FamilyID:    d.Family.ID,
			Title:       d.Puzzle.Title,
			Description: d.Puzzle.Description,
			Status:      puzzle.StatusPublished,
			Groups:      d.Puzzle.Groups,
			CreatedBy:   owner.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("seed puzzle: %w", err)
		}
		if err := puzzles.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("seed puzzle: %w", err)
		}
		res.PuzzleCreated = true
	} else if err != nil {
		return nil, fmt.Errorf("seed puzzle: %w", err)
	}

	log.Info().
		Str("familyId", d.Family.ID).
		Str("puzzleId", d.Puzzle.ID).
		Bool("familyCreated", res.FamilyCreated).
		Bool("puzzleCreated", res.PuzzleCreated).
		Msg("demo seed applied")
	return res, nil
}
