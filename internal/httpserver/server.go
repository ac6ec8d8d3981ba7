// internal/httpserver/server.go
//
// HTTP server wiring for the Family Connections backend.
// Responsibilities:
//   - Router + middleware (request IDs, access log, panic recovery, CORS,
//     JSON content type, per-request timeouts).
//   - Public endpoints: "/", "/health", puzzle play and leaderboards.
//   - Auth endpoints (magic link, login codes, session cookie).
//   - Member endpoints: families, invites, puzzle authoring.
//   - The /ws leaderboard feed.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - /ws sits outside the timeout group; its connection outlives the
//     request that opened it.

package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/invite"
	"github.com/robalobadob/family-connections/internal/leaderboard"
	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/store"
	"github.com/robalobadob/family-connections/internal/websocket"
)

// Services are the domain collaborators behind the routes. Hub may be nil,
// in which case /ws is not mounted.
type Services struct {
	Auth        *auth.Service
	Families    *family.Service
	Invites     *invite.Service
	Puzzles     *puzzle.Service
	Leaderboard *leaderboard.Service
	Sessions    store.Store
	Hub         *websocket.Hub
}

// Options are the transport settings.
type Options struct {
	BaseURL        string
	ClientOrigins  []string
	CookieName     string
	SecureCookies  bool
	RequestTimeout time.Duration
	// ExposeLinks returns sign-in links in the /auth/magic-link response
	// (development only).
	ExposeLinks    bool
}

// Server bundles the router and its dependencies.
type Server struct {
	r    *chi.Mux
	svc  Services
	opts Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(svc Services, opts Options) *Server {
	if opts.CookieName == "" {
		opts.CookieName = "fc_token"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	s := &Server{r: chi.NewRouter(), svc: svc, opts: opts}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger)
	s.r.Use(chimw.Recoverer)
	s.r.Use(cors(opts.ClientOrigins))

	if svc.Hub != nil {
		s.r.Get("/ws", svc.Hub.Handler(opts.ClientOrigins))
	}

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(opts.RequestTimeout))
		r.Use(jsonContentType)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"service":   "family-connections",
				"endpoints": []string{"/health", "/auth/*", "/families", "/invites", "/puzzles", "/play/*", "/ws"},
			})
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		})

		s.mountAuth(r)
		s.mountFamilies(r)
		s.mountInvites(r)
		s.mountPuzzles(r)
		s.mountPlay(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Router exposes the internal router (main and tests serve it).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origins. Requests
// from other origins get no CORS headers and are left to the browser.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
