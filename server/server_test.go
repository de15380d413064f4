package server_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/bionicpro/auth-gateway/auth"
	"github.com/bionicpro/auth-gateway/auth/idpfakes"
	authflowfakes "github.com/bionicpro/auth-gateway/authflow/repofakes"
	"github.com/bionicpro/auth-gateway/idp"
	"github.com/bionicpro/auth-gateway/internal/config"
	"github.com/bionicpro/auth-gateway/server"
	sessionfakes "github.com/bionicpro/auth-gateway/sessions/repofakes"
	"github.com/bionicpro/auth-gateway/token"
)

const frontendURL = "http://frontend.test"

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

type fakeBroker struct {
	response map[string]any
	err      error
	aliases  []string
}

func (b *fakeBroker) BrokerToken(_ context.Context, _ string, idpAlias string) (map[string]any, error) {
	b.aliases = append(b.aliases, idpAlias)
	if b.err != nil {
		return nil, b.err
	}
	return b.response, nil
}

// testFixture wires a Server against fakes for every dependency.
type testFixture struct {
	sessionRepo   *sessionfakes.FakeSessionRepo
	challengeRepo *authflowfakes.FakeChallengeRepo
	provider      *idpfakes.FakeIdentityProvider
	pinger        *fakePinger
	broker        *fakeBroker
	server        *server.Server
}

func setupServerFixture(t *testing.T, mutate ...func(*config.Config)) *testFixture {
	t.Helper()

	cipher, err := token.NewCipher(token.LoadKey(token.GenerateKey()))
	require.NoError(t, err)

	f := &testFixture{
		sessionRepo:   sessionfakes.NewFakeSessionRepo(),
		challengeRepo: authflowfakes.NewFakeChallengeRepo(),
		provider:      idpfakes.New(),
		pinger:        &fakePinger{},
		broker:        &fakeBroker{response: map[string]any{"access_token": "upstream-token"}},
	}
	// The access token is opaque to the gateway; only the id_token carries
	// display claims.
	f.provider.ExchangeTokens = &idp.Tokens{
		AccessToken:  "opaque-access-token",
		Expiry:       time.Now().Add(2 * time.Minute),
		RefreshToken: "RT1",
		IDToken:      signedTestToken(t),
	}
	f.provider.RefreshTokens = &idp.Tokens{
		AccessToken: "opaque-access-token-2",
		Expiry:      time.Now().Add(2 * time.Minute),
	}

	service, err := auth.NewSessionService(f.sessionRepo, f.challengeRepo, f.provider, cipher, time.Hour)
	require.NoError(t, err)

	cfg := config.Config{
		App: config.App{Env: "TEST", Port: "8000"},
		Backend: config.Backend{
			FrontendURL:  frontendURL,
			ProxyTimeout: 5 * time.Second,
		},
		Cors: config.Cors{
			AllowedOrigins: []string{frontendURL},
			AllowedMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
			AllowedHeaders: "Content-Type, Authorization",
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	f.server, err = server.New(cfg, service, f.pinger, f.broker)
	require.NoError(t, err)
	return f
}

func signedTestToken(t *testing.T) string {
	t.Helper()
	claims := jwtlib.MapClaims{
		"sub":                "user-1",
		"email":              "user@example.com",
		"preferred_username": "user1",
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func (f *testFixture) do(req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec.Result()
}

// login walks the full redirect flow and returns the session cookie.
func (f *testFixture) login(t *testing.T) *http.Cookie {
	t.Helper()

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)

	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	resp = f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state="+state, nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, frontendURL, resp.Header.Get("Location"))

	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie)
	return cookie
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "BIONICPRO_SESSION" {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestLoginRedirectsToProvider(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	require.Equal(t, http.StatusFound, resp.StatusCode)
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.NotEmpty(t, authURL.Query().Get("state"))
	require.NotEmpty(t, authURL.Query().Get("code_challenge"))
	require.Nil(t, sessionCookie(t, resp), "no session exists before the callback")
}

func TestCallbackSetsSessionCookie(t *testing.T) {
	f := setupServerFixture(t)

	cookie := f.login(t)

	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, 3600, cookie.MaxAge)
	require.Len(t, cookie.Value, 43)
}

func TestCallbackProviderErrorRedirectsToFrontend(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, frontendURL+"?error=access_denied", resp.Header.Get("Location"))
}

func TestCallbackMissingParams(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=only-code", nil))

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, frontendURL+"?error=missing_params", resp.Header.Get("Location"))
}

func TestCallbackUnknownState(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=forged", nil))

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, frontendURL+"?error=invalid_state", resp.Header.Get("Location"))
}

func TestCallbackExchangeFailure(t *testing.T) {
	f := setupServerFixture(t)
	f.provider.ExchangeErr = errors.New("invalid_grant")

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")

	resp = f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad-code&state="+state, nil))

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, frontendURL+"?error=token_exchange_failed", resp.Header.Get("Location"))
	require.Nil(t, sessionCookie(t, resp))
}

func TestSessionEndpointRotatesCookie(t *testing.T) {
	f := setupServerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, true, body["authenticated"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "user-1", user["sub"])
	require.Equal(t, "user@example.com", user["email"])

	rotated := sessionCookie(t, resp)
	require.NotNil(t, rotated)
	require.NotEqual(t, cookie.Value, rotated.Value)

	// The cookie issued by the callback is dead after one use.
	replay := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	replay.AddCookie(cookie)
	resp = f.do(replay)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_session", decodeBody(t, resp)["error"])
	cleared := sessionCookie(t, resp)
	require.NotNil(t, cleared)
	require.Equal(t, -1, cleared.MaxAge)

	// The rotated cookie is the live one.
	next := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	next.AddCookie(rotated)
	resp = f.do(next)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionEndpointWithoutCookie(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/session", nil))

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "no_session", decodeBody(t, resp)["error"])
}

func TestExpiredAccessTokenRefreshedTransparently(t *testing.T) {
	f := setupServerFixture(t)
	cookie := f.login(t)
	expireAccessToken(t, f, cookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"RT1"}, f.provider.RefreshedTokens)
	require.NotNil(t, sessionCookie(t, resp))
}

func TestFailedRefreshForcesReauthentication(t *testing.T) {
	f := setupServerFixture(t)
	f.provider.RefreshErr = errors.New("invalid_grant")
	cookie := f.login(t)
	expireAccessToken(t, f, cookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "session_expired", decodeBody(t, resp)["error"])
	require.Equal(t, 0, f.sessionRepo.Len())
}

func expireAccessToken(t *testing.T, f *testFixture, sessionID string) {
	t.Helper()
	ctx := context.Background()
	session, err := f.sessionRepo.Get(ctx, sessionID)
	require.NoError(t, err)
	session.AccessTokenExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, f.sessionRepo.Save(ctx, sessionID, session, time.Hour))
}

func TestLogout(t *testing.T) {
	f := setupServerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "logged_out", decodeBody(t, resp)["status"])
	cleared := sessionCookie(t, resp)
	require.NotNil(t, cleared)
	require.Equal(t, -1, cleared.MaxAge)
	require.Equal(t, []string{f.provider.ExchangeTokens.IDToken}, f.provider.EndSessionIDTokens)

	// The destroyed session no longer authenticates.
	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	resp = f.do(req)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutWithoutSessionStillSucceeds(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "logged_out", decodeBody(t, resp)["status"])
}

func TestProxyForwardsWithBearerToken(t *testing.T) {
	var captured *http.Request
	var capturedBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		b, _ := io.ReadAll(r.Body)
		capturedBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"report-7"}`))
	}))
	defer upstream.Close()

	f := setupServerFixture(t, func(cfg *config.Config) {
		cfg.Backend.APIGatewayURL = upstream.URL
	})
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/proxy/reports?limit=5", strings.NewReader(`{"name":"q3"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"report-7"}`, string(body))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NotNil(t, sessionCookie(t, resp), "proxy responses carry the rotated cookie")

	require.NotNil(t, captured)
	require.Equal(t, "/reports", captured.URL.Path)
	require.Equal(t, "5", captured.URL.Query().Get("limit"))
	require.Equal(t, "Bearer "+f.provider.ExchangeTokens.AccessToken, captured.Header.Get("Authorization"))
	require.Empty(t, captured.Header.Get("Cookie"), "session cookie must not leak upstream")
	require.Equal(t, `{"name":"q3"}`, capturedBody)
}

func TestProxyUpstreamUnavailable(t *testing.T) {
	f := setupServerFixture(t, func(cfg *config.Config) {
		cfg.Backend.APIGatewayURL = "http://127.0.0.1:1"
	})
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/reports", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "upstream_unavailable", decodeBody(t, resp)["error"])
	require.NotNil(t, sessionCookie(t, resp))
}

func TestProxyRequiresSession(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/api/proxy/reports", nil))

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBrokerTokenEndpoint(t *testing.T) {
	f := setupServerFixture(t, func(cfg *config.Config) {
		cfg.Provider.BrokerIDPAlias = "upstream-idp"
	})
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/broker-token", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "upstream-token", decodeBody(t, resp)["access_token"])
	require.Equal(t, []string{"upstream-idp"}, f.broker.aliases)
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	f := setupServerFixture(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodOptions} {
		resp := f.do(httptest.NewRequest(method, "/auth/unknown", nil))
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestBrokerTokenNotRegisteredWithoutAlias(t *testing.T) {
	f := setupServerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/broker-token", nil)
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "connected", body["redis"])
}

func TestHealthStoreUnreachable(t *testing.T) {
	f := setupServerFixture(t)
	f.pinger.err = errors.New("connection refused")

	resp := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "unhealthy", decodeBody(t, resp)["status"])
}

func TestCorsPreflight(t *testing.T) {
	f := setupServerFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/session", nil)
	req.Header.Set("Origin", frontendURL)
	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, frontendURL, resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestCorsRejectsUnknownOrigin(t *testing.T) {
	f := setupServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Header.Set("Origin", "http://evil.test")
	resp := f.do(req)

	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSessionResponseCompressed(t *testing.T) {
	f := setupServerFixture(t)
	cookie := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.AddCookie(cookie)
	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(gz).Decode(&body))
	require.Equal(t, true, body["authenticated"])
}

func TestRequestIDEchoed(t *testing.T) {
	f := setupServerFixture(t)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	resp = f.do(req)
	require.Equal(t, "trace-42", resp.Header.Get("X-Request-ID"))
}
