// internal/httpserver/respond.go
//
// JSON responses, request decoding, the access log and the mapping from
// domain errors to HTTP statuses.

package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/invite"
	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/repository"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("invalid_json")

// requestLogger attaches a request-scoped zerolog logger (tagged with the
// chi request ID) and writes one access line per request.
func requestLogger(next http.Handler) http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(next)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = tagRequestID(h)
	return hlog.NewHandler(log.Logger)(h)
}

func tagRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("requestId", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// writeError maps a domain error to its HTTP status and writes
// {"error": "..."}. Unknown errors are logged and reported as 500 without
// their details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		msg = "something went wrong, please try again"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, family.ErrInvalidInput),
		errors.Is(err, invite.ErrInvalidInput),
		errors.Is(err, puzzle.ErrInvalidPuzzle),
		errors.Is(err, game.ErrIncompleteSelection),
		errors.Is(err, game.ErrUnknownCard),
		errors.Is(err, game.ErrPlayerNameRequired):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidLink),
		errors.Is(err, auth.ErrInvalidCode):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden),
		errors.Is(err, family.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, invite.ErrNotFound),
		errors.Is(err, puzzle.ErrNotFound),
		errors.Is(err, family.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, invite.ErrExpired),
		errors.Is(err, auth.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, invite.ErrNotActive),
		errors.Is(err, puzzle.ErrNotPublished),
		errors.Is(err, puzzle.ErrAlreadyPublished),
		errors.Is(err, puzzle.ErrNotYetAvailable),
		errors.Is(err, game.ErrNotPlaying),
		errors.Is(err, game.ErrNotFinished),
		errors.Is(err, auth.ErrCodePending),
		errors.Is(err, auth.ErrUserExists),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// orEmpty keeps empty lists encoding as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}
