// internal/store/memory.go
//
// In-memory holder for live play sessions.
// A session exists here from "start" until the process restarts; only the
// leaderboard result is ever written to the database.
//
// Characteristics:
//   - Sessions are keyed by Session.ID.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Get hands out copies; mutations go through Update so two requests for
//     the same session never interleave.
//   - Idle sessions can be dropped with Evict.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/repository"
)

// Store defines the persistence interface for play sessions.
type Store interface {
	// Save adds or replaces a session.
	Save(ctx context.Context, s *game.Session) error

	// Get returns a copy of the session.
	// Returns repository.ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (*game.Session, error)

	// Update runs fn on the stored session under the write lock and returns a
	// copy of the result. fn's error is returned unchanged.
	Update(ctx context.Context, id string, fn func(s *game.Session) error) (*game.Session, error)
}

type entry struct {
	session *game.Session
	touched time.Time
}

// Memory is an in-memory map-based Store implementation.
type Memory struct {
	mu       sync.RWMutex      // guards sessions map
	sessions map[string]*entry // keyed by Session.ID
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() *Memory {
	return &Memory{sessions: make(map[string]*entry), now: time.Now}
}

// Save adds or replaces the session.
func (m *Memory) Save(_ context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &entry{session: s.Clone(), touched: m.now()}
	return nil
}

// Get looks up a session by ID.
func (m *Memory) Get(_ context.Context, id string) (*game.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.sessions[id]; ok {
		return e.session.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

// Update applies fn to the stored session.
func (m *Memory) Update(_ context.Context, id string, fn func(s *game.Session) error) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// fn works on a copy so a failed mutation leaves the stored state alone.
	cp := e.session.Clone()
	if err := fn(cp); err != nil {
		return e.session.Clone(), err
	}
	e.session = cp
	e.touched = m.now()
	return cp.Clone(), nil
}

// Evict drops sessions untouched for longer than maxIdle and returns how many
// were removed.
func (m *Memory) Evict(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	n := 0
	for id, e := range m.sessions {
		if e.touched.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
