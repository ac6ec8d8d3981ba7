// internal/puzzle/types.go
//
// Puzzle definitions authored by family members.
// Defines:
//   - Status: draft/published lifecycle (one-way).
//   - Group: a themed set of four cards with an optional hint.
//   - Puzzle: the document stored per family.

package puzzle

import (
	"strings"
	"time"
)

// Status is the publication state of a puzzle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

const (
	// GroupCount is the number of groups a publishable puzzle must have.
	GroupCount = 4
	// CardsPerGroup is the number of cards every group must hold.
	CardsPerGroup = 4
)

// Group is one category of the puzzle.
type Group struct {
	Title string   `json:"title"`
	Hint  string   `json:"hint"`
	Cards []string `json:"cards"`
}

// Puzzle is a Connections-style grouping puzzle.
type Puzzle struct {
	ID          string    `json:"id"`
	FamilyID    string    `json:"familyId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Groups      []Group   `json:"groups"`
	DropsAt     time.Time `json:"dropsAt"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlayableCards returns the trimmed, non-empty cards of the group in order.
func (g Group) PlayableCards() []string {
	out := make([]string, 0, len(g.Cards))
	for _, c := range g.Cards {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Cards flattens the playable cards of every group in definition order.
func (p *Puzzle) Cards() []string {
	var out []string
	for _, g := range p.Groups {
		out = append(out, g.PlayableCards()...)
	}
	return out
}

// IsPublished reports whether the puzzle can be shared for play.
func (p *Puzzle) IsPublished() bool { return p.Status == StatusPublished }

// Normalize trims titles, hints and cards in place.
func (p *Puzzle) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	for i := range p.Groups {
		g := &p.Groups[i]
		g.Title = strings.TrimSpace(g.Title)
		g.Hint = strings.TrimSpace(g.Hint)
		for j := range g.Cards {
			g.Cards[j] = strings.TrimSpace(g.Cards[j])
		}
	}
}
