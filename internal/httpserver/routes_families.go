// internal/httpserver/routes_families.go
//
// Family and invite endpoints.
//   - POST /families                   → create a family owned by the caller
//   - GET  /families                   → families the caller belongs to
//   - GET  /families/{familyID}/members → members (member only)
//   - POST /invites                    → issue an invite link (member only)
//   - GET  /invites?familyId=          → list a family's invites (member only)
//   - POST /invites/validate           → check a pasted link or code (public)
//   - POST /invites/finalize           → join the family (auth)

package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/family-connections/internal/invite"
)

func (s *Server) mountFamilies(r chi.Router) {
	r.Route("/families", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/", s.handleCreateFamily)
		r.Get("/", s.handleMyFamilies)
		r.Get("/{familyID}/members", s.handleMembers)
	})
}

func (s *Server) mountInvites(r chi.Router) {
	r.Post("/invites/validate", s.handleValidateInvite)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/invites", s.handleIssueInvite)
		r.Get("/invites", s.handleListInvites)
		r.Post("/invites/finalize", s.handleFinalizeInvite)
	})
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	f, err := s.svc.Families.Create(r.Context(), member(r), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleMyFamilies(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Families.Mine(r.Context(), member(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	familyID := chi.URLParam(r, "familyID")
	if err := s.svc.Families.Authorize(r.Context(), member(r), familyID); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Families.Members(r.Context(), familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func (s *Server) handleIssueInvite(w http.ResponseWriter, r *http.Request) {
	var req invite.IssueRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Families.Authorize(r.Context(), member(r), req.FamilyID); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.FamilyName) == "" {
		if f, err := s.svc.Families.Get(r.Context(), req.FamilyID); err == nil {
			req.FamilyName = f.Name
		}
	}
	req.CreatedBy = principal(r).UserID
	issued, err := s.svc.Invites.Issue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	familyID := r.URL.Query().Get("familyId")
	if err := s.svc.Families.Authorize(r.Context(), member(r), familyID); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.svc.Invites.List(r.Context(), familyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(out))
}

func (s *Server) handleValidateInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Invite string `json:"invite"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.Invites.Validate(r.Context(), req.Invite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type finalizeReq struct {
	InviteToken string `json:"inviteToken"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleFinalizeInvite(w http.ResponseWriter, r *http.Request) {
	var req finalizeReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := principal(r)
	inv, err := s.svc.Invites.Finalize(r.Context(), invite.FinalizeRequest{
		Token:       req.InviteToken,
		UserID:      p.UserID,
		Email:       p.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"familyId":   inv.FamilyID,
		"familyName": inv.FamilyName,
		"status":     string(inv.Status),
	})
}
