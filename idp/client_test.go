package idp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/bionicpro/auth-gateway/idp"
)

const testRedirectURI = "http://localhost:8000/auth/callback"

func setupMockProvider(t *testing.T) (*mockoidc.MockOIDC, *idp.Client) {
	t.Helper()

	m, err := mockoidc.Run()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })

	client, err := idp.NewClient(idp.Config{
		Issuer:       m.Issuer(),
		ClientID:     m.ClientID,
		ClientSecret: m.ClientSecret,
		RedirectURI:  testRedirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)

	return m, client
}

// newAuthCode drives the provider's session store directly to mint an
// authorization code bound to the given PKCE challenge.
func newAuthCode(t *testing.T, m *mockoidc.MockOIDC, codeChallenge string) string {
	t.Helper()

	session, err := m.SessionStore.NewSession(
		"openid profile email", "", mockoidc.DefaultUser(), codeChallenge, "S256")
	require.NoError(t, err)
	return session.SessionID
}

func TestNewClientValidation(t *testing.T) {
	_, err := idp.NewClient(idp.Config{ClientID: "c", RedirectURI: "r"})
	require.Error(t, err)

	_, err = idp.NewClient(idp.Config{Issuer: "http://idp", RedirectURI: "r"})
	require.Error(t, err)

	_, err = idp.NewClient(idp.Config{Issuer: "http://idp", ClientID: "c"})
	require.Error(t, err)
}

func TestDiscover(t *testing.T) {
	_, client := setupMockProvider(t)

	endpoints, err := client.Discover(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, endpoints.AuthorizationEndpoint)
	require.NotEmpty(t, endpoints.TokenEndpoint)
}

func TestDiscoverIsCached(t *testing.T) {
	m, client := setupMockProvider(t)

	first, err := client.Discover(context.Background())
	require.NoError(t, err)

	// With the provider gone, the cached document still serves lookups
	require.NoError(t, m.Shutdown())

	second, err := client.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDiscoverFailureIsNotCached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := idp.NewClient(idp.Config{
		Issuer:      server.URL,
		ClientID:    "reports-frontend",
		RedirectURI: testRedirectURI,
	})
	require.NoError(t, err)

	_, err = client.Discover(context.Background())
	require.ErrorIs(t, err, idp.ErrDiscoveryFailed)

	// Still failing, still not cached as success
	_, err = client.Discover(context.Background())
	require.ErrorIs(t, err, idp.ErrDiscoveryFailed)
}

func TestAuthorizationURL(t *testing.T) {
	m, client := setupMockProvider(t)

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	rawURL, err := client.AuthorizationURL(context.Background(), "state-1", challenge)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	query := parsed.Query()
	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, m.ClientID, query.Get("client_id"))
	require.Equal(t, testRedirectURI, query.Get("redirect_uri"))
	require.Equal(t, "state-1", query.Get("state"))
	require.Equal(t, challenge, query.Get("code_challenge"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.Equal(t, "openid profile email", query.Get("scope"))
}

func TestExchangeCode(t *testing.T) {
	m, client := setupMockProvider(t)

	verifier := oauth2.GenerateVerifier()
	code := newAuthCode(t, m, oauth2.S256ChallengeFromVerifier(verifier))

	tokens, err := client.ExchangeCode(context.Background(), code, verifier)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.IDToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.True(t, tokens.Expiry.After(time.Now()))
}

func TestExchangeCodeRejected(t *testing.T) {
	_, client := setupMockProvider(t)

	verifier := oauth2.GenerateVerifier()
	_, err := client.ExchangeCode(context.Background(), "bogus-code", verifier)
	require.ErrorIs(t, err, idp.ErrExchangeFailed)
}

func TestExchangeCodeWrongVerifier(t *testing.T) {
	m, client := setupMockProvider(t)

	code := newAuthCode(t, m, oauth2.S256ChallengeFromVerifier(oauth2.GenerateVerifier()))

	_, err := client.ExchangeCode(context.Background(), code, oauth2.GenerateVerifier())
	require.ErrorIs(t, err, idp.ErrExchangeFailed)
}

func TestRefresh(t *testing.T) {
	m, client := setupMockProvider(t)

	verifier := oauth2.GenerateVerifier()
	code := newAuthCode(t, m, oauth2.S256ChallengeFromVerifier(verifier))

	tokens, err := client.ExchangeCode(context.Background(), code, verifier)
	require.NoError(t, err)

	refreshed, err := client.Refresh(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.True(t, refreshed.Expiry.After(time.Now()))
}

func TestRefreshRejected(t *testing.T) {
	_, client := setupMockProvider(t)

	_, err := client.Refresh(context.Background(), "not-a-refresh-token")
	require.ErrorIs(t, err, idp.ErrRefreshFailed)
}

// fakeProvider is a minimal OpenID Provider for the endpoints go-oidc does
// not model (end-session) and for enrichment calls.
type fakeProvider struct {
	server *httptest.Server

	endSessionHits  atomic.Int64
	lastIDTokenHint atomic.Value
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	fp := &fakeProvider{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		base := fp.server.URL
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 base,
			"authorization_endpoint": base + "/authorize",
			"token_endpoint":         base + "/token",
			"userinfo_endpoint":      base + "/userinfo",
			"end_session_endpoint":   base + "/logout",
			"jwks_uri":               base + "/jwks",
		})
	})
	mux.HandleFunc("GET /logout", func(w http.ResponseWriter, r *http.Request) {
		fp.endSessionHits.Add(1)
		fp.lastIDTokenHint.Store(r.URL.Query().Get("id_token_hint"))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer AT1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "user-1", "email": "john.doe@example.com"})
	})

	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) client(t *testing.T) *idp.Client {
	t.Helper()
	client, err := idp.NewClient(idp.Config{
		Issuer:      fp.server.URL,
		ClientID:    "reports-frontend",
		RedirectURI: testRedirectURI,
		Scopes:      []string{"openid"},
	})
	require.NoError(t, err)
	return client
}

func TestEndSession(t *testing.T) {
	fp := newFakeProvider(t)
	client := fp.client(t)

	client.EndSession(context.Background(), "the-id-token")
	require.EqualValues(t, 1, fp.endSessionHits.Load())
	require.Equal(t, "the-id-token", fp.lastIDTokenHint.Load())
}

func TestEndSessionWithoutIDTokenIsNoop(t *testing.T) {
	fp := newFakeProvider(t)
	client := fp.client(t)

	client.EndSession(context.Background(), "")
	require.EqualValues(t, 0, fp.endSessionHits.Load())
}

func TestUserinfo(t *testing.T) {
	fp := newFakeProvider(t)
	client := fp.client(t)

	claims, err := client.Userinfo(context.Background(), "AT1")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])

	_, err = client.Userinfo(context.Background(), "wrong-token")
	require.Error(t, err)
}

func TestBrokerToken(t *testing.T) {
	fp := newFakeProvider(t)
	client := fp.client(t)

	// The fake provider has no broker endpoint: the call must fail cleanly
	_, err := client.BrokerToken(context.Background(), "AT1", "upstream-idp")
	require.Error(t, err)

	_, err = client.BrokerToken(context.Background(), "AT1", "")
	require.Error(t, err)
}
