package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - login flow and session lifecycle
	RouteAuthLogin    = "/auth/login"
	RouteAuthCallback = "/auth/callback"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthSession  = "/auth/session"
	RouteAuthBroker   = "/auth/broker-token"

	// Proxy Routes - authenticated pass-through to the API gateway
	RouteAPIProxy = "/api/proxy/{path...}"

	// Operational Routes
	RouteHealth = "/health"
)

// proxyPrefix is stripped from proxied request paths before forwarding.
const proxyPrefix = "/api/proxy/"
