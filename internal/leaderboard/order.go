// internal/leaderboard/order.go
//
// Ranking of saved results for one puzzle.
// Keys, in priority order:
//  1. solved before unsolved
//  2. more groups found
//  3. fewer strikes
//  4. fewer attempts
//  5. shorter duration
//  6. earlier completion
//
// Results equal on every key keep their insertion order.

package leaderboard

import (
	"cmp"
	"slices"

	"github.com/robalobadob/family-connections/internal/game"
)

// Compare orders a before b when it ranks higher. It returns 0 only when the
// two results tie on all six keys.
func Compare(a, b game.Result) int {
	if a.Solved != b.Solved {
		if a.Solved {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.SolvedGroups, a.SolvedGroups); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Strikes, b.Strikes); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Attempts, b.Attempts); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Duration, b.Duration); c != 0 {
		return c
	}
	return a.CompletedAt.Compare(b.CompletedAt)
}

// Less reports whether a ranks strictly above b.
func Less(a, b game.Result) bool { return Compare(a, b) < 0 }

// Sort ranks results in place. The input must be in insertion order for
// full ties to come out stable.
func Sort(results []game.Result) {
	slices.SortStableFunc(results, Compare)
}

// Top returns the first n ranked results (all of them when n <= 0 or n
// exceeds the length). results must already be sorted.
func Top(results []game.Result, n int) []game.Result {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}
