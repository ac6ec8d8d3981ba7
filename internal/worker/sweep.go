// internal/worker/sweep.go
//
// Periodic housekeeping.
//   - Persists the expired status of overdue invites. Redemption checks the
//     clock itself, so this only keeps listings accurate.
//   - Drops game sessions nobody touched for a while.

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// InviteExpirer moves overdue invites to expired.
type InviteExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// SessionEvicter drops idle game sessions.
type SessionEvicter interface {
	Evict(maxIdle time.Duration) int
}

// Config controls the sweep cadence.
type Config struct {
	Interval       time.Duration
	SessionMaxIdle time.Duration
}

// Sweeper runs the housekeeping cycle on a ticker.
type Sweeper struct {
	invites  InviteExpirer
	sessions SessionEvicter
	cfg      Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper. Either collaborator may be nil.
func NewSweeper(invites InviteExpirer, sessions SessionEvicter, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.SessionMaxIdle <= 0 {
		cfg.SessionMaxIdle = 24 * time.Hour
	}
	return &Sweeper{invites: invites, sessions: sessions, cfg: cfg}
}

// Start launches the loop; calling it on a running sweeper does nothing.
func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	log.Info().Dur("interval", w.cfg.Interval).Msg("sweeper started")
	go w.run(ctx, w.stopCh, w.doneCh)
}

// Stop ends the loop and waits for the current cycle to finish.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Info().Msg("sweeper stopped")
}

// IsRunning reports whether the loop is active.
func (w *Sweeper) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Sweeper) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Result summarises one cycle.
type Result struct {
	InvitesExpired  int64
	SessionsEvicted int
}

// RunOnce performs a single cycle.
func (w *Sweeper) RunOnce(ctx context.Context) Result {
	var res Result
	if w.invites != nil {
		n, err := w.invites.ExpireStale(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sweep invites")
		}
		res.InvitesExpired = n
	}
	if w.sessions != nil {
		res.SessionsEvicted = w.sessions.Evict(w.cfg.SessionMaxIdle)
	}
	if res.InvitesExpired > 0 || res.SessionsEvicted > 0 {
		log.Info().
			Int64("invitesExpired", res.InvitesExpired).
			Int("sessionsEvicted", res.SessionsEvicted).
			Msg("sweep")
	}
	return res
}
