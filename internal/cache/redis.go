// internal/cache/redis.go
//
// Redis-backed cache of ranked leaderboards.
// Each puzzle has a generation counter under leaderboard:{puzzleID}:version.
// Boards are JSON values under leaderboard:{puzzleID}:v{generation}:top with
// a TTL. A saved result bumps the generation, so a board built from an older
// read lands under a key nobody asks for and simply expires.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robalobadob/family-connections/internal/game"
)

// DefaultTTL bounds how long a board may be served without a database read.
const DefaultTTL = 5 * time.Minute

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Leaderboard caches ranked boards in Redis.
type Leaderboard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeaderboard connects to Redis and verifies the connection.
func NewLeaderboard(ctx context.Context, opts Options) (*Leaderboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewLeaderboardWithClient(client, opts.TTL), nil
}

// NewLeaderboardWithClient wraps an existing client.
func NewLeaderboardWithClient(client *redis.Client, ttl time.Duration) *Leaderboard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Leaderboard{client: client, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Leaderboard) Close() error {
	return c.client.Close()
}

func versionKey(puzzleID string) string {
	return fmt.Sprintf("leaderboard:%s:version", puzzleID)
}

func boardKey(puzzleID string, version int64) string {
	return fmt.Sprintf("leaderboard:%s:v%d:top", puzzleID, version)
}

// Version returns the puzzle's current board generation (0 before the first
// save).
func (c *Leaderboard) Version(ctx context.Context, puzzleID string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(puzzleID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting board version: %w", err)
	}
	return v, nil
}

// Get returns the board cached for the given generation. ok is false on a
// miss.
func (c *Leaderboard) Get(ctx context.Context, puzzleID string, version int64) ([]game.Result, bool, error) {
	raw, err := c.client.Get(ctx, boardKey(puzzleID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting board: %w", err)
	}
	var ranked []game.Result
	if err := json.Unmarshal(raw, &ranked); err != nil {
		return nil, false, fmt.Errorf("decoding board: %w", err)
	}
	return ranked, true, nil
}

// Set stores a ranked board built while version was current.
func (c *Leaderboard) Set(ctx context.Context, puzzleID string, version int64, ranked []game.Result) error {
	if ranked == nil {
		ranked = []game.Result{}
	}
	raw, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("encoding board: %w", err)
	}
	if err := c.client.Set(ctx, boardKey(puzzleID, version), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("setting board: %w", err)
	}
	return nil
}

// Invalidate advances the puzzle's generation. Boards of earlier
// generations are never read again.
func (c *Leaderboard) Invalidate(ctx context.Context, puzzleID string) error {
	if err := c.client.Incr(ctx, versionKey(puzzleID)).Err(); err != nil {
		return fmt.Errorf("bumping board version: %w", err)
	}
	return nil
}
