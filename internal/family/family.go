// internal/family/family.go
//
// Families and their members.
// A family is created by its first member (owner) or by redeeming an invite
// (which upserts the family record). Membership gates puzzle authoring and
// invite issuing; site admins bypass the check.

package family

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

// Role of a member inside a family.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var (
	ErrNotFound     = errors.New("family not found")
	ErrNotMember    = errors.New("not a member of this family")
	ErrInvalidInput = errors.New("invalid family request")
)

// Family groups members who share puzzles.
type Family struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Member is one user's membership of a family, keyed by (FamilyID, UserID).
type Member struct {
	FamilyID    string    `json:"familyId"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	InviteToken string    `json:"inviteToken,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Repository persists families and members.
type Repository interface {
	// CreateWithOwner inserts the family and its owner membership atomically.
	CreateWithOwner(ctx context.Context, f *Family, owner *Member) error
	Get(ctx context.Context, id string) (*Family, error)
	GetMember(ctx context.Context, familyID, userID string) (*Member, error)
	ListMembers(ctx context.Context, familyID string) ([]Member, error)
	ListForUser(ctx context.Context, userID string) ([]Family, error)
}

// Principal is the minimum identity the membership check needs.
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
	Admin       bool
}

// Service handles family creation and membership checks.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a family service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create makes a new family owned by p.
func (s *Service) Create(ctx context.Context, p Principal, name string) (*Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	f := &Family{ID: uuid.NewString(), Name: name, CreatedBy: p.UserID, CreatedAt: now, UpdatedAt: now}
	owner := &Member{
		FamilyID:    f.ID,
		UserID:      p.UserID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        RoleOwner,
		JoinedAt:    now,
	}
	if owner.DisplayName == "" {
		owner.DisplayName = p.Email
	}
	if err := s.repo.CreateWithOwner(ctx, f, owner); err != nil {
		return nil, fmt.Errorf("creating family: %w", err)
	}
	log.Info().Str("familyId", f.ID).Str("owner", p.UserID).Msg("family created")
	return f, nil
}

// Get loads a family.
func (s *Service) Get(ctx context.Context, id string) (*Family, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting family: %w", err)
	}
	return f, nil
}

// Mine lists the families p belongs to.
func (s *Service) Mine(ctx context.Context, p Principal) ([]Family, error) {
	out, err := s.repo.ListForUser(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing families: %w", err)
	}
	return out, nil
}

// Members lists the members of a family.
func (s *Service) Members(ctx context.Context, familyID string) ([]Member, error) {
	out, err := s.repo.ListMembers(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return out, nil
}

// Authorize returns nil when p may act on behalf of the family.
func (s *Service) Authorize(ctx context.Context, p Principal, familyID string) error {
	if p.Admin {
		return nil
	}
	if strings.TrimSpace(familyID) == "" {
		return fmt.Errorf("%w: familyId is required", ErrInvalidInput)
	}
	if _, err := s.repo.GetMember(ctx, familyID, p.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotMember
		}
		return fmt.Errorf("checking membership: %w", err)
	}
	return nil
}
