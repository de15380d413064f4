package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// LoginHandler starts the Authorization-Code-with-PKCE flow and redirects the
// browser to the identity provider's authorization endpoint.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := s.sessions.InitiateLogin(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("login_initiation_failed")
			writeJSONError(w, http.StatusInternalServerError, "login_initiation_failed")
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}
