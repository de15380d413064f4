// Package idp encapsulates every HTTP call the gateway makes to the external
// OpenID Provider: discovery, authorization URL construction, code and refresh
// token exchanges, best-effort logout, and auxiliary profile enrichment.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every outbound call to the identity provider. On
// timeout the operation fails like any other provider error; the engine never
// retries inline.
const DefaultTimeout = 30 * time.Second

var (
	ErrDiscoveryFailed = errors.New("identity provider discovery failed")
	ErrExchangeFailed  = errors.New("authorization code exchange failed")
	ErrRefreshFailed   = errors.New("token refresh failed")
)

// Config identifies the gateway's client registration at the provider.
type Config struct {
	// Issuer is the provider's issuer URL, e.g.
	// "http://keycloak:8080/realms/reports-realm" for Keycloak.
	Issuer string
	// ClientID is the registered public client identifier.
	ClientID string
	// ClientSecret is optional; public PKCE clients leave it empty.
	ClientSecret string
	// RedirectURI is the registered callback URL of the gateway.
	RedirectURI string
	// Scopes requested at login, e.g. ["openid", "profile", "email"].
	Scopes []string
	// Timeout for outbound calls; DefaultTimeout when zero.
	Timeout time.Duration
}

// Endpoints are the provider endpoints taken from the discovery document.
type Endpoints struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
}

// Client talks to one OpenID Provider. The discovery document is fetched on
// first use and cached for the process lifetime (read-mostly, safe to share
// across request handlers); a failed fetch is not cached so a temporarily
// unreachable provider recovers without a restart.
type Client struct {
	config     Config
	httpClient *http.Client

	discoverLock sync.Mutex
	endpoints    *Endpoints
	oauthConfig  *oauth2.Config
}

// NewClient validates the configuration and prepares the client. No network
// call is made until the first operation needs the discovery document.
func NewClient(config Config) (*Client, error) {
	if config.Issuer == "" {
		return nil, errors.New("[idp NewClient] issuer is required")
	}
	if config.ClientID == "" {
		return nil, errors.New("[idp NewClient] client id is required")
	}
	if config.RedirectURI == "" {
		return nil, errors.New("[idp NewClient] redirect uri is required")
	}
	if _, err := url.Parse(config.Issuer); err != nil {
		return nil, fmt.Errorf("[idp NewClient] invalid issuer URL: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Discover fetches {issuer}/.well-known/openid-configuration via go-oidc and
// returns the endpoints the gateway needs. Cached after the first success.
// Discovery failure is a hard error for the caller: neither login nor refresh
// can proceed without the token endpoint.
func (c *Client) Discover(ctx context.Context) (Endpoints, error) {
	endpoints, _, err := c.discover(ctx)
	if err != nil {
		return Endpoints{}, err
	}
	return *endpoints, nil
}

func (c *Client) discover(ctx context.Context) (*Endpoints, *oauth2.Config, error) {
	c.discoverLock.Lock()
	defer c.discoverLock.Unlock()

	if c.endpoints != nil {
		return c.endpoints, c.oauthConfig, nil
	}

	ctx = oidc.ClientContext(ctx, c.httpClient)
	provider, err := oidc.NewProvider(ctx, c.config.Issuer)
	if err != nil {
		log.Err(err).Str("issuer", c.config.Issuer).Msg("discovery_failed")
		return nil, nil, errors.Join(ErrDiscoveryFailed, err)
	}

	// go-oidc keeps the standard endpoints; the end-session and userinfo
	// endpoints are read from the raw document claims.
	var endpoints Endpoints
	if err := provider.Claims(&endpoints); err != nil {
		return nil, nil, errors.Join(ErrDiscoveryFailed, err)
	}

	providerEndpoint := provider.Endpoint()
	// Send client credentials in the request body for consistent behaviour
	// across provider implementations.
	providerEndpoint.AuthStyle = oauth2.AuthStyleInParams

	c.endpoints = &endpoints
	c.oauthConfig = &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		RedirectURL:  c.config.RedirectURI,
		Scopes:       c.config.Scopes,
		Endpoint:     providerEndpoint,
	}

	return c.endpoints, c.oauthConfig, nil
}

// AuthorizationURL builds the provider redirect for the Authorization Code
// flow with a PKCE S256 challenge. Construction is pure aside from the cached
// discovery lookup.
func (c *Client) AuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error) {
	_, oauthConfig, err := c.discover(ctx)
	if err != nil {
		return "", err
	}

	return oauthConfig.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// ExchangeCode redeems an authorization code with its PKCE verifier. Any
// provider rejection or transport failure surfaces as ErrExchangeFailed and is
// logged; the caller redirects the user back to the frontend with an error.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	_, oauthConfig, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	oauthToken, err := oauthConfig.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		log.Err(err).Msg("token_exchange_failed")
		return nil, errors.Join(ErrExchangeFailed, err)
	}

	return tokensFromOAuth2(oauthToken), nil
}

// Refresh performs a refresh_token grant. A rejected or unreachable provider
// yields ErrRefreshFailed; the engine destroys the session in response.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	_, oauthConfig, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	// TokenSource with only a refresh token forces a refresh_token grant on
	// the first Token() call.
	oauthToken, err := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		log.Err(err).Msg("token_refresh_failed")
		return nil, errors.Join(ErrRefreshFailed, err)
	}

	tokens := tokensFromOAuth2(oauthToken)
	// x/oauth2 echoes the input refresh token back when the provider did not
	// rotate it; the engine only re-encrypts on rotation.
	if tokens.RefreshToken == refreshToken {
		tokens.RefreshToken = ""
	}

	return tokens, nil
}

// EndSession notifies the provider that the user logged out, passing the
// stored ID token as a hint. Best effort: failures are logged and swallowed,
// local logout succeeds regardless.
func (c *Client) EndSession(ctx context.Context, idToken string) {
	endpoints, _, err := c.discover(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("end_session_skipped")
		return
	}
	if endpoints.EndSessionEndpoint == "" || idToken == "" {
		return
	}

	logoutURL := endpoints.EndSessionEndpoint + "?" + url.Values{"id_token_hint": {idToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logoutURL, nil)
	if err != nil {
		log.Warn().Err(err).Msg("end_session_failed")
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("end_session_failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		log.Warn().Int("status", resp.StatusCode).Msg("end_session_failed")
	}
}

// Userinfo fetches the provider's userinfo document for the given access
// token. Auxiliary enrichment only: callers must treat failures as non-fatal.
func (c *Client) Userinfo(ctx context.Context, accessToken string) (map[string]any, error) {
	endpoints, _, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	if endpoints.UserinfoEndpoint == "" {
		return nil, errors.New("[idp Userinfo] provider has no userinfo endpoint")
	}

	return c.bearerJSON(ctx, endpoints.UserinfoEndpoint, accessToken)
}

// BrokerToken retrieves the external token of a federated upstream identity
// provider (Keycloak identity brokering: /broker/{alias}/token). Auxiliary
// enrichment only; must never block or fail the primary session flow.
func (c *Client) BrokerToken(ctx context.Context, accessToken, idpAlias string) (map[string]any, error) {
	if idpAlias == "" {
		return nil, errors.New("[idp BrokerToken] idp alias is required")
	}

	brokerURL := strings.TrimSuffix(c.config.Issuer, "/") + "/broker/" + url.PathEscape(idpAlias) + "/token"
	return c.bearerJSON(ctx, brokerURL, accessToken)
}
