package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bionicpro/auth-gateway/auth"
	"github.com/bionicpro/auth-gateway/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the validated session for the request
	ContextKeySession ContextKey = "session"
	// ContextKeySessionID stores the rotated session ID issued for this request
	ContextKeySessionID ContextKey = "session_id"
)

// SessionFromContext returns the session injected by RequireSession.
func SessionFromContext(ctx context.Context) (sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(sessions.Session)
	return session, ok
}

// RequireSession validates the session cookie, transparently refreshing the
// access token when needed, and rotates the session ID. The rotated ID is set
// as the response cookie before the wrapped handler runs, so every response
// from a protected route carries the fresh cookie. Validation failures clear
// the cookie and return 401.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionIDFromRequest(r)

			session, newID, err := s.sessions.ValidateAndRefresh(r.Context(), sessionID)
			if err != nil {
				log.Debug().Err(err).Msg("session_rejected")
				s.ClearSessionCookie(w)
				writeJSONError(w, http.StatusUnauthorized, rejectionCode(err))
				return
			}

			s.SetSessionCookie(w, newID)

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			ctx = context.WithValue(ctx, ContextKeySessionID, newID)
			next(w, r.WithContext(ctx))
		}
	}
}

// rejectionCode distinguishes why a request was rejected so the frontend can
// tell a missing cookie from a dead one.
func rejectionCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return "no_session"
	case errors.Is(err, auth.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, auth.ErrSessionExpired):
		return "session_expired"
	default:
		return "not_authenticated"
	}
}
