package token

import (
	"errors"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DisplayClaims holds identity claims extracted from an ID token for UI
// display. The claims are read WITHOUT signature verification and must never
// feed an authorization decision; authorization always relies on the upstream
// provider accepting the access token.
type DisplayClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
}

// ParseDisplayClaims decodes the payload of rawIDToken as an untrusted claims
// read. An empty token yields empty claims rather than an error so callers can
// degrade to an anonymous display profile.
func ParseDisplayClaims(rawIDToken string) (DisplayClaims, error) {
	if rawIDToken == "" {
		return DisplayClaims{}, nil
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawIDToken, jwtlib.MapClaims{})
	if err != nil {
		return DisplayClaims{}, errors.Join(ErrMalformedToken, err)
	}

	mapClaims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return DisplayClaims{}, ErrMalformedToken
	}

	return DisplayClaims{
		Sub:               stringClaim(mapClaims, "sub"),
		Email:             stringClaim(mapClaims, "email"),
		Name:              stringClaim(mapClaims, "name"),
		PreferredUsername: stringClaim(mapClaims, "preferred_username"),
		GivenName:         stringClaim(mapClaims, "given_name"),
		FamilyName:        stringClaim(mapClaims, "family_name"),
	}, nil
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	value, ok := claims[name].(string)
	if !ok {
		return ""
	}
	return value
}
