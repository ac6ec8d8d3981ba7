// internal/httpserver/routes_puzzles.go
//
// Puzzle authoring endpoints. Every route requires a signed-in member of
// the puzzle's family (admins pass every membership check).
//   - POST /puzzles                    → create a draft
//   - GET  /puzzles?familyId=          → list a family's puzzles
//   - GET  /puzzles/{puzzleID}         → one puzzle, answers included
//   - PUT  /puzzles/{puzzleID}         → edit a draft
//   - POST /puzzles/{puzzleID}/publish → publish and return the share URL

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/family-connections/internal/puzzle"
)

func (s *Server) mountPuzzles(r chi.Router) {
	r.Route("/puzzles", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/", s.handleCreatePuzzle)
		r.Get("/", s.handleListPuzzles)
		r.Get("/{puzzleID}", s.handleGetPuzzle)
		r.Put("/{puzzleID}", s.handleUpdatePuzzle)
		r.Post("/{puzzleID}/publish", s.handlePublishPuzzle)
	})
}

type createPuzzleReq struct {
	FamilyID string `json:"familyId"`
	puzzle.Draft
}

func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	var req createPuzzleReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Families.Authorize(r.Context(), member(r), req.FamilyID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.svc.Puzzles.Create(r.Context(), req.FamilyID, principal(r).UserID, req.Draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if err := s.svc.Families.Authorize(r.Context(), member(r), familyID); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Puzzles.List(r.Context(), familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

// authorizedPuzzle loads the puzzle named in the path and checks that the
// caller belongs to its family.
func (s *Server) authorizedPuzzle(r *http.Request) (*puzzle.Puzzle, error) {
	p, err := s.svc.Puzzles.Get(r.Context(), chi.URLParam(r, "puzzleID"))
	if err != nil {
		return nil, err
	}
	if err := s.svc.Families.Authorize(r.Context(), member(r), p.FamilyID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	p, err := s.authorizedPuzzle(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePuzzle(w http.ResponseWriter, r *http.Request) {
	p, err := s.authorizedPuzzle(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var d puzzle.Draft
	if err := decode(w, r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.svc.Puzzles.Update(r.Context(), p.ID, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handlePublishPuzzle(w http.ResponseWriter, r *http.Request) {
	p, err := s.authorizedPuzzle(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	published, err := s.svc.Puzzles.Publish(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"puzzle":   published,
		"shareUrl": puzzle.ShareURL(s.opts.BaseURL, published.ID),
	})
}
