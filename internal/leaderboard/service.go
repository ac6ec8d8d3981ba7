// internal/leaderboard/service.go
//
// Saving results and serving ranked boards, with an optional cache,
// event publisher and live broadcaster.

package leaderboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/game"
)

const (
	// DefaultLimit is the number of rows shown on a puzzle's board.
	DefaultLimit = 20
	// MaxLimit caps what a caller may ask for and what gets cached.
	MaxLimit = 100
)

// Repository persists results. InsertResult is keyed by Result.ID and
// reports false when a result with that id already exists.
type Repository interface {
	InsertResult(ctx context.Context, r *game.Result) (bool, error)
	GetResult(ctx context.Context, id string) (*game.Result, error)
	// ListResults returns every result of a puzzle in insertion order.
	ListResults(ctx context.Context, puzzleID string) ([]game.Result, error)
}

// Cache holds ranked boards between saves. Boards are stored per
// generation; Invalidate moves a puzzle to a new generation so a board
// loaded before a save can never be served after it.
type Cache interface {
	Version(ctx context.Context, puzzleID string) (int64, error)
	Get(ctx context.Context, puzzleID string, version int64) ([]game.Result, bool, error)
	Set(ctx context.Context, puzzleID string, version int64, ranked []game.Result) error
	Invalidate(ctx context.Context, puzzleID string) error
}

// Publisher emits an event for every newly saved result.
type Publisher interface {
	PuzzleCompleted(ctx context.Context, r *game.Result) error
}

// Broadcaster pushes a fresh board to live subscribers of a puzzle.
type Broadcaster interface {
	BroadcastBoard(puzzleID string, ranked []game.Result)
}

// Service saves results and serves ranked boards.
type Service struct {
	repo      Repository
	cache     Cache
	publisher Publisher
	hub       Broadcaster
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

func WithCache(c Cache) Option             { return func(s *Service) { s.cache = c } }
func WithPublisher(p Publisher) Option     { return func(s *Service) { s.publisher = p } }
func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.hub = b } }

// NewService creates a leaderboard service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores r once and returns the stored row. Saving the same result
// again writes nothing and returns the row saved the first time (created is
// false), so a client may retry after a failed request. Only the database
// can fail the call; cache, event and broadcast problems are logged.
func (s *Service) Save(ctx context.Context, r *game.Result) (stored *game.Result, created bool, err error) {
	if strings.TrimSpace(r.PlayerName) == "" {
		return nil, false, game.ErrPlayerNameRequired
	}
	inserted, err := s.repo.InsertResult(ctx, r)
	if err != nil {
		return nil, false, fmt.Errorf("saving result: %w", err)
	}
	if !inserted {
		log.Debug().Str("resultId", r.ID).Msg("result already saved")
		stored, err = s.repo.GetResult(ctx, r.ID)
		if err != nil {
			return nil, false, fmt.Errorf("loading saved result: %w", err)
		}
		return stored, false, nil
	}
	log.Info().
		Str("puzzleId", r.PuzzleID).
		Str("player", r.PlayerName).
		Bool("solved", r.Solved).
		Int("attempts", r.Attempts).
		Int("strikes", r.Strikes).
		Msg("result saved")

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, r.PuzzleID); err != nil {
			log.Warn().Err(err).Str("puzzleId", r.PuzzleID).Msg("invalidate leaderboard cache")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PuzzleCompleted(ctx, r); err != nil {
			log.Warn().Err(err).Str("resultId", r.ID).Msg("publish puzzle.completed")
		}
	}
	if s.hub != nil {
		ranked, err := s.Top(ctx, r.PuzzleID, DefaultLimit)
		if err != nil {
			log.Warn().Err(err).Str("puzzleId", r.PuzzleID).Msg("load board for broadcast")
		} else {
			s.hub.BroadcastBoard(r.PuzzleID, ranked)
		}
	}
	return r, true, nil
}

// Top returns the best limit results of a puzzle. limit <= 0 means
// DefaultLimit; values above MaxLimit are clamped.
func (s *Service) Top(ctx context.Context, puzzleID string, limit int) ([]game.Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	// The generation is read before the results so a save that lands in
	// between moves readers past whatever this call writes back.
	cached := s.cache != nil
	var version int64
	if cached {
		v, err := s.cache.Version(ctx, puzzleID)
		if err != nil {
			log.Warn().Err(err).Str("puzzleId", puzzleID).Msg("read leaderboard cache version")
			cached = false
		}
		version = v
	}
	if cached {
		ranked, ok, err := s.cache.Get(ctx, puzzleID, version)
		if err != nil {
			log.Warn().Err(err).Str("puzzleId", puzzleID).Msg("read leaderboard cache")
		} else if ok {
			return Top(ranked, limit), nil
		}
	}

	all, err := s.repo.ListResults(ctx, puzzleID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	Sort(all)
	ranked := Top(all, MaxLimit)

	if cached {
		if err := s.cache.Set(ctx, puzzleID, version, ranked); err != nil {
			log.Warn().Err(err).Str("puzzleId", puzzleID).Msg("write leaderboard cache")
		}
	}
	if ranked == nil {
		ranked = []game.Result{}
	}
	return Top(ranked, limit), nil
}
