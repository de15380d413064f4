package server

import "net/http"

func (s *Server) initRoutes() {
	// LOGIN
	s.RegisterRouteFunc("GET "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware()...)) // For form_post response mode
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Session-protected routes: every hit rotates the session cookie
	s.RegisterRouteFunc("GET "+RouteAuthSession, ChainMiddleware(s.SessionInfoHandler(), append(s.protectedMiddleware(), s.CompressionMiddleware)...))
	if s.broker != nil && s.config.Provider.BrokerIDPAlias != "" {
		s.RegisterRouteFunc("GET "+RouteAuthBroker, ChainMiddleware(s.BrokerTokenHandler(), append(s.protectedMiddleware(), s.CompressionMiddleware)...))
		s.registerPreflight(RouteAuthBroker)
	}
	for _, method := range []string{"GET", "POST", "PUT", "DELETE", "PATCH"} {
		s.RegisterRouteFunc(method+" "+RouteAPIProxy, ChainMiddleware(s.ProxyHandler(), s.protectedMiddleware()...))
	}

	// CORS preflight per registered path; CorsMiddleware terminates OPTIONS
	// itself. Preflight is deliberately not a catch-all so unknown paths
	// stay 404 for every method.
	s.registerPreflight(RouteAuthLogin, RouteAuthCallback, RouteAuthLogout, RouteAuthSession, RouteAPIProxy)

	// Operational routes
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}

func (s *Server) registerPreflight(paths ...string) {
	for _, path := range paths {
		s.RegisterRouteFunc("OPTIONS "+path, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	}
}

func (s *Server) protectedMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return append(s.APIMiddleware(), s.RequireSession())
}

// PreflightHandler answers same-origin OPTIONS requests that CorsMiddleware
// passed through.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
