// internal/puzzle/validate.go

package puzzle

import (
	"fmt"
	"strings"
)

// Validate enforces the publish-time invariants: exactly four titled groups,
// four non-empty cards per group, and no card repeated anywhere in the grid
// (compared case-insensitively after trimming).
func (p *Puzzle) Validate() error {
	if len(p.Groups) != GroupCount {
		return fmt.Errorf("%w: need %d groups, got %d", ErrInvalidPuzzle, GroupCount, len(p.Groups))
	}
	seen := make(map[string]int, GroupCount*CardsPerGroup)
	for i, g := range p.Groups {
		if strings.TrimSpace(g.Title) == "" {
			return fmt.Errorf("%w: group %d has no title", ErrInvalidPuzzle, i+1)
		}
		if len(g.Cards) != CardsPerGroup {
			return fmt.Errorf("%w: group %q needs %d cards, got %d", ErrInvalidPuzzle, g.Title, CardsPerGroup, len(g.Cards))
		}
		for _, c := range g.Cards {
			c = strings.TrimSpace(c)
			if c == "" {
				return fmt.Errorf("%w: group %q has an empty card", ErrInvalidPuzzle, g.Title)
			}
			key := strings.ToLower(c)
			if prev, dup := seen[key]; dup {
				return fmt.Errorf("%w: card %q appears in groups %d and %d", ErrInvalidPuzzle, c, prev+1, i+1)
			}
			seen[key] = i
		}
	}
	return nil
}
