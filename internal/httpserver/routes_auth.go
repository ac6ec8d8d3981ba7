// internal/httpserver/routes_auth.go
//
// Sign-in and session endpoints.
//   - POST /auth/magic-link   → send a sign-in link to the address
//   - POST /auth/confirm      → redeem a sign-in link, set the session cookie
//   - POST /auth/verify-code  → sign in with an admin-issued code
//   - POST /auth/logout       → clear the session cookie
//   - GET  /auth/me           → current principal (auth)
//   - POST /admin/login-codes → issue a login code (admin)
//
// The session credential travels as an HttpOnly cookie or a bearer token;
// requireAuth accepts either and puts the principal on the request context.

package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/family"
)

func (s *Server) mountAuth(r chi.Router) {
	r.Post("/auth/magic-link", s.handleMagicLink)
	r.Post("/auth/confirm", s.handleConfirm)
	r.Post("/auth/verify-code", s.handleVerifyCode)
	r.Post("/auth/logout", s.handleLogout)

	r.With(s.requireAuth).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, principal(r))
	})
	r.With(s.requireAuth).Post("/admin/login-codes", s.handleCreateLoginCode)
}

type magicLinkReq struct {
	Email       string `json:"email"`
	InviteToken string `json:"inviteToken"`
	Redirect    string `json:"redirect"`
}

func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	link, err := s.svc.Auth.RequestMagicLink(r.Context(), req.Email, strings.TrimSpace(req.InviteToken), req.Redirect)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := map[string]any{"ok": true}
	if s.opts.ExposeLinks {
		out["link"] = link
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.svc.Auth.ConfirmMagicLink(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.svc.Auth.VerifyLoginCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, sess)
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCreateLoginCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	code, err := s.svc.Auth.CreateLoginCode(r.Context(), *principal(r), req.Email, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

// ---------------------------- auth middleware ------------------------------

// requireAuth enforces a valid session and injects the principal into the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.svc.Auth.Authenticate(r.Context(), s.bearerOrCookie(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// principal returns the caller on routes behind requireAuth.
func principal(r *http.Request) *auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// member converts the caller into the identity the family checks use.
func member(r *http.Request) family.Principal {
	p := principal(r)
	return family.Principal{UserID: p.UserID, Email: p.Email, DisplayName: p.DisplayName, Admin: p.Admin}
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.opts.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ------------------------------ cookies ------------------------------------

func (s *Server) sameSite() http.SameSite {
	if s.opts.SecureCookies {
		return http.SameSiteNoneMode // required for cross-site use when Secure
	}
	return http.SameSiteLaxMode
}

// setAuthCookie writes the session cookie with appropriate security attributes.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: s.sameSite(),
		Expires:  exp,
	})
}

// clearAuthCookie deletes the session cookie.
func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: s.sameSite(),
		MaxAge:   -1,
	})
}
