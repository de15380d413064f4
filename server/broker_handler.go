package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// BrokerTokenHandler exposes the federated upstream provider's token for the
// authenticated user. Only registered when a broker IDP alias is configured.
func (s *Server) BrokerTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "not_authenticated")
			return
		}

		brokerToken, err := s.broker.BrokerToken(r.Context(), session.AccessToken, s.config.Provider.BrokerIDPAlias)
		if err != nil {
			log.Warn().Err(err).Msg("broker_token_failed")
			writeJSONError(w, http.StatusBadGateway, "broker_token_unavailable")
			return
		}

		writeJSON(w, http.StatusOK, brokerToken)
	}
}
