// Package server is the HTTP surface of the authentication gateway. It
// translates cookies and redirects into calls on the session lifecycle
// engine, and proxies authenticated API traffic to the backend with the
// session's access token attached.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bionicpro/auth-gateway/auth"
	"github.com/bionicpro/auth-gateway/internal/config"
)

// Pinger reports backing-store reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerTokenFetcher retrieves the federated upstream provider's token for
// an authenticated user.
type BrokerTokenFetcher interface {
	BrokerToken(ctx context.Context, accessToken, idpAlias string) (map[string]any, error)
}

type Server struct {
	env         string // Environment (e.g., "DEV", "production")
	mux         *http.ServeMux
	routes      []string
	config      config.Config
	sessions    *auth.SessionService
	store       Pinger
	broker      BrokerTokenFetcher
	proxyClient *http.Client
}

func New(config config.Config, sessionService *auth.SessionService, store Pinger, broker BrokerTokenFetcher) (*Server, error) {
	if sessionService == nil {
		return nil, fmt.Errorf("[Server New] session service is required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		sessions: sessionService,
		store:    store,
		broker:   broker,
		proxyClient: &http.Client{
			Timeout: config.Backend.ProxyTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	s.env = config.App.Env

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	stdlog.Printf("[%-19s] %s\n", displayMethod, path)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("response_encode_failed")
	}
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// frontendErrorURL builds the redirect target for callback failures. The
// frontend surfaces the error code to the user.
func (s *Server) frontendErrorURL(code string) string {
	return strings.TrimSuffix(s.config.Backend.FrontendURL, "/") + "?error=" + code
}
