package idpfakes

import (
	"context"
	"sync"

	"github.com/bionicpro/auth-gateway/auth"
	"github.com/bionicpro/auth-gateway/idp"
)

var _ auth.IdentityProvider = (*FakeIdentityProvider)(nil)

// FakeIdentityProvider is a scriptable auth.IdentityProvider for engine tests.
type FakeIdentityProvider struct {
	lock sync.Mutex

	AuthorizationURLErr error

	ExchangeTokens *idp.Tokens
	ExchangeErr    error

	RefreshTokens *idp.Tokens
	RefreshErr    error

	UserinfoClaims map[string]any
	UserinfoErr    error

	ExchangedCodes     []string
	ExchangedVerifiers []string
	RefreshedTokens    []string
	EndSessionIDTokens []string
	UserinfoCalls      int
}

func New() *FakeIdentityProvider {
	return &FakeIdentityProvider{}
}

func (f *FakeIdentityProvider) AuthorizationURL(_ context.Context, state, codeChallenge string) (string, error) {
	if f.AuthorizationURLErr != nil {
		return "", f.AuthorizationURLErr
	}
	return "https://idp.example.com/authorize?state=" + state + "&code_challenge=" + codeChallenge, nil
}

func (f *FakeIdentityProvider) ExchangeCode(_ context.Context, code, codeVerifier string) (*idp.Tokens, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.ExchangedCodes = append(f.ExchangedCodes, code)
	f.ExchangedVerifiers = append(f.ExchangedVerifiers, codeVerifier)

	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	tokens := *f.ExchangeTokens
	return &tokens, nil
}

func (f *FakeIdentityProvider) Refresh(_ context.Context, refreshToken string) (*idp.Tokens, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.RefreshedTokens = append(f.RefreshedTokens, refreshToken)

	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	tokens := *f.RefreshTokens
	return &tokens, nil
}

func (f *FakeIdentityProvider) EndSession(_ context.Context, idToken string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.EndSessionIDTokens = append(f.EndSessionIDTokens, idToken)
}

func (f *FakeIdentityProvider) Userinfo(_ context.Context, _ string) (map[string]any, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.UserinfoCalls++
	if f.UserinfoErr != nil {
		return nil, f.UserinfoErr
	}
	return f.UserinfoClaims, nil
}
