package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAccessTokenLifetime is assumed when the provider omits expires_in
// from a token response.
const DefaultAccessTokenLifetime = 120 * time.Second

// maxResponseSize caps enrichment response bodies.
const maxResponseSize = 1 << 20

// Tokens is the useful subset of a token endpoint response.
type Tokens struct {
	AccessToken string
	// Expiry is the absolute access token expiry computed from expires_in.
	Expiry time.Time
	// RefreshToken is empty when the provider did not issue or rotate one.
	RefreshToken string
	IDToken      string
	Scope        string
}

func tokensFromOAuth2(oauthToken *oauth2.Token) *Tokens {
	tokens := &Tokens{
		AccessToken:  oauthToken.AccessToken,
		Expiry:       oauthToken.Expiry,
		RefreshToken: oauthToken.RefreshToken,
	}

	if tokens.Expiry.IsZero() {
		tokens.Expiry = time.Now().Add(DefaultAccessTokenLifetime)
	}
	if idToken, ok := oauthToken.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	if scope, ok := oauthToken.Extra("scope").(string); ok {
		tokens.Scope = scope
	}

	return tokens
}

// bearerJSON GETs a provider endpoint with a bearer token and decodes the
// JSON response body.
func (c *Client) bearerJSON(ctx context.Context, endpoint, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("[idp bearerJSON] build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[idp bearerJSON] GET %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[idp bearerJSON] %s: HTTP %d", endpoint, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("[idp bearerJSON] %s: unexpected response: %w", endpoint, err)
	}

	return payload, nil
}
