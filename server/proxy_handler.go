package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Hop-by-hop headers are stripped in both directions when proxying.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyHandler forwards the request to the API gateway with the session's
// access token as a Bearer credential. The browser never sees the token and
// the backend never sees the cookie.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "not_authenticated")
			return
		}

		targetURL := strings.TrimSuffix(s.config.Backend.APIGatewayURL, "/") + "/" + r.PathValue("path")
		if r.URL.RawQuery != "" {
			targetURL += "?" + r.URL.RawQuery
		}

		upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable")
			return
		}

		copyProxyHeaders(upstreamReq.Header, r.Header)
		upstreamReq.Header.Set("Authorization", "Bearer "+session.AccessToken)

		resp, err := s.proxyClient.Do(upstreamReq)
		if err != nil {
			log.Warn().Err(err).Str("target", targetURL).Msg("proxy_upstream_failed")
			writeJSONError(w, http.StatusBadGateway, "upstream_unavailable")
			return
		}
		defer resp.Body.Close()

		header := w.Header()
		for name, values := range resp.Header {
			if isHopByHop(name) || name == "Set-Cookie" {
				continue
			}
			for _, value := range values {
				header.Add(name, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Debug().Err(err).Msg("proxy_body_copy_interrupted")
		}
	}
}

// copyProxyHeaders forwards request headers minus hop-by-hop headers and the
// credentials that must not leak upstream.
func copyProxyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopByHop(name) || name == "Cookie" || name == "Authorization" || name == "Host" {
			continue
		}
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
