package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/bionicpro/auth-gateway/auth"
)

// CallbackHandler finishes the login flow. On success it sets the session
// cookie and redirects to the frontend; every failure redirects to the
// frontend with a machine-readable error code so the SPA can surface it.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.FormValue("code")
		state := r.FormValue("state")
		errParam := r.FormValue("error")

		sessionID, err := s.sessions.HandleCallback(r.Context(), code, state, errParam)
		if err != nil {
			http.Redirect(w, r, s.frontendErrorURL(callbackErrorCode(err, errParam)), http.StatusFound)
			return
		}

		s.SetSessionCookie(w, sessionID)
		http.Redirect(w, r, s.config.Backend.FrontendURL, http.StatusFound)
	}
}

// callbackErrorCode maps a callback failure to the error code the frontend
// contract expects. Provider-reported errors pass through verbatim.
func callbackErrorCode(err error, errParam string) string {
	switch {
	case errors.Is(err, auth.ErrIdentityProvider):
		return url.QueryEscape(errParam)
	case errors.Is(err, auth.ErrInvalidRequest):
		return "missing_params"
	case errors.Is(err, auth.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, auth.ErrTokenExchangeFailed):
		return "token_exchange_failed"
	default:
		log.Error().Err(err).Msg("callback_failed")
		return "token_exchange_failed"
	}
}
