package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HealthHandler reports gateway liveness and session-store reachability.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store != nil {
			if err := s.store.Ping(r.Context()); err != nil {
				log.Warn().Err(err).Msg("health_store_unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"redis":  "disconnected",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"redis":  "connected",
		})
	}
}
