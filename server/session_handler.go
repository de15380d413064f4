package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bionicpro/auth-gateway/token"
)

// SessionInfoHandler reports the authenticated user's identity to the
// frontend. Claims are parsed from the id_token for display only; the access
// token stays opaque to the gateway and is verified by the backend on every
// proxied call.
func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "not_authenticated")
			return
		}

		claims, err := token.ParseDisplayClaims(session.IDToken)
		if err != nil {
			log.Warn().Err(err).Msg("claims_parse_failed")
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user":          claims,
		})
	}
}
