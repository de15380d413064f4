package auth

import "errors"

// Typed failures raised by the session lifecycle engine. The HTTP layer maps
// each to a status code or a frontend error redirect; no other error detail
// crosses the boundary.
var (
	// ErrNoSession: the request carried no session ID at all.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession: the session ID resolves to nothing in the store.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired: the access token expired and could not be refreshed;
	// the session has been destroyed and the user must re-authenticate.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidRequest: the callback is missing its code or state parameter.
	ErrInvalidRequest = errors.New("missing code or state parameter")
	// ErrInvalidState: the callback state matches no stored PKCE challenge -
	// expired, already consumed, or a possible CSRF/replay attempt.
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrTokenExchangeFailed: the provider rejected the authorization code.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrIdentityProvider: the provider reported an error on the callback
	// before any code was issued (e.g. the user denied consent).
	ErrIdentityProvider = errors.New("identity provider returned an error")
)
