// internal/httpserver/routes_play.go
//
// Public play endpoints. Anyone holding a share link can play; no account
// is needed.
//   - GET  /play/{puzzleID}                     → puzzle header (no answers)
//   - POST /play/{puzzleID}/sessions            → start a session
//   - GET  /play/{puzzleID}/leaderboard         → ranked results (?limit=)
//   - GET  /play/sessions/{sessionID}           → current state
//   - POST /play/sessions/{sessionID}/toggle    → select/deselect a card
//   - POST /play/sessions/{sessionID}/guess     → submit the selection
//   - POST /play/sessions/{sessionID}/save      → save the result by name
//
// Sessions live in the in-memory store; whoever holds the session id owns
// it. Group answers are only revealed as they are solved.

package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/puzzle"
)

func (s *Server) mountPlay(r chi.Router) {
	r.Route("/play", func(r chi.Router) {
		r.Get("/{puzzleID}", s.handlePlayablePuzzle)
		r.Post("/{puzzleID}/sessions", s.handleStartSession)
		r.Get("/{puzzleID}/leaderboard", s.handleLeaderboard)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/toggle", s.handleToggle)
			r.Post("/guess", s.handleGuess)
			r.Post("/save", s.handleSave)
		})
	})
}

// playablePuzzle is what a player sees before solving anything.
type playablePuzzle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DropsAt     time.Time `json:"dropsAt"`
	Groups      int       `json:"groups"`
}

// sessionView is a session plus the cards still on the board.
type sessionView struct {
	*game.Session
	Remaining []string `json:"remaining"`
}

func viewOf(sess *game.Session) sessionView {
	return sessionView{Session: sess, Remaining: sess.Remaining()}
}

func (s *Server) handlePlayablePuzzle(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Puzzles.Playable(r.Context(), chi.URLParam(r, "puzzleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicView(p))
}

func publicView(p *puzzle.Puzzle) playablePuzzle {
	return playablePuzzle{ID: p.ID, Title: p.Title, Description: p.Description, DropsAt: p.DropsAt, Groups: len(p.Groups)}
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Puzzles.Playable(r.Context(), chi.URLParam(r, "puzzleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess := game.New(p)
	if err := s.svc.Sessions.Save(r.Context(), sess); err != nil {
		writeError(w, r, fmt.Errorf("saving session: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": sess.ID,
		"puzzle":    publicView(p),
		"session":   viewOf(sess),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Card string `json:"card"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.svc.Sessions.Update(r.Context(), chi.URLParam(r, "sessionID"), func(sess *game.Session) error {
		return sess.ToggleSelect(req.Card)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var out game.Outcome
	sess, err := s.svc.Sessions.Update(r.Context(), chi.URLParam(r, "sessionID"), func(sess *game.Session) error {
		var err error
		out, err = sess.SubmitGuess()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": out, "session": viewOf(sess)})
}

// handleSave stores the finished session on the leaderboard (201). Saving
// again, for instance after a failed request, answers 200 with the row that
// was stored the first time.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerName string `json:"playerName"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.svc.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := sess.Result(req.PlayerName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stored, created, err := s.svc.Leaderboard.Save(r.Context(), res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, stored)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive number"})
			return
		}
		limit = n
	}
	out, err := s.svc.Leaderboard.Top(r.Context(), chi.URLParam(r, "puzzleID"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}
