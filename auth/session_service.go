// Package auth implements the session and token lifecycle engine of the
// gateway: PKCE login initiation, callback handling, per-request session
// validation with transparent access-token refresh, and session rotation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/bionicpro/auth-gateway/authflow"
	"github.com/bionicpro/auth-gateway/idp"
	"github.com/bionicpro/auth-gateway/sessions"
	"github.com/bionicpro/auth-gateway/token"
)

// DefaultSessionLifetime is the session TTL when none is configured. It is
// intentionally much longer than the upstream access-token lifetime (~2 min):
// one session spans many refresh cycles.
const DefaultSessionLifetime = time.Hour

// IdentityProvider is the subset of the idp client the engine depends on.
type IdentityProvider interface {
	AuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*idp.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*idp.Tokens, error)
	EndSession(ctx context.Context, idToken string)
	Userinfo(ctx context.Context, accessToken string) (map[string]any, error)
}

// SessionService orchestrates the session state machine. It holds no mutable
// state of its own between requests: correctness under concurrency relies
// entirely on the stores, and concurrent rotations of one session ID resolve
// by last write wins.
type SessionService struct {
	sessionRepo     sessions.Repo
	challengeRepo   authflow.Repo
	provider        IdentityProvider
	cipher          *token.Cipher
	sessionLifetime time.Duration
}

// NewSessionService wires the engine. sessionLifetime falls back to
// DefaultSessionLifetime when zero.
func NewSessionService(
	sessionRepo sessions.Repo,
	challengeRepo authflow.Repo,
	provider IdentityProvider,
	cipher *token.Cipher,
	sessionLifetime time.Duration,
) (*SessionService, error) {
	if sessionRepo == nil || challengeRepo == nil || provider == nil || cipher == nil {
		return nil, errors.New("[NewSessionService] all dependencies are required")
	}

	if sessionLifetime <= 0 {
		sessionLifetime = DefaultSessionLifetime
	}

	return &SessionService{
		sessionRepo:     sessionRepo,
		challengeRepo:   challengeRepo,
		provider:        provider,
		cipher:          cipher,
		sessionLifetime: sessionLifetime,
	}, nil
}

// SessionLifetime is the TTL applied to every session write, and therefore
// the cookie Max-Age.
func (s *SessionService) SessionLifetime() time.Duration {
	return s.sessionLifetime
}

// InitiateLogin starts the Authorization-Code-with-PKCE flow: it generates a
// code verifier and state, stores the challenge for the callback window, and
// returns the provider authorization URL to redirect the user to. No session
// exists yet at this point.
func (s *SessionService) InitiateLogin(ctx context.Context) (string, error) {
	codeVerifier := oauth2.GenerateVerifier()
	codeChallenge := oauth2.S256ChallengeFromVerifier(codeVerifier)
	state := authflow.NewState()

	challenge := authflow.Challenge{CodeVerifier: codeVerifier, CreatedAt: time.Now()}
	if err := s.challengeRepo.Put(ctx, state, challenge); err != nil {
		return "", fmt.Errorf("[InitiateLogin] failed to store pkce challenge: %w", err)
	}

	authURL, err := s.provider.AuthorizationURL(ctx, state, codeChallenge)
	if err != nil {
		return "", fmt.Errorf("[InitiateLogin] %w", err)
	}

	return authURL, nil
}

// HandleCallback finishes the login flow and returns the new session ID.
//
// The state's PKCE challenge is consumed exactly once whether or not the
// exchange succeeds; a replayed state fails with ErrInvalidState.
func (s *SessionService) HandleCallback(ctx context.Context, code, state, errParam string) (string, error) {
	if errParam != "" {
		log.Warn().Str("error", errParam).Msg("callback_provider_error")
		return "", fmt.Errorf("%w: %s", ErrIdentityProvider, errParam)
	}

	if code == "" || state == "" {
		return "", ErrInvalidRequest
	}

	challenge, err := s.challengeRepo.Consume(ctx, state)
	if err != nil {
		// Unmatched state: expired challenge, replay, or forged request
		log.Warn().Msg("callback_invalid_state")
		return "", ErrInvalidState
	}

	tokens, err := s.provider.ExchangeCode(ctx, code, challenge.CodeVerifier)
	if err != nil {
		return "", errors.Join(ErrTokenExchangeFailed, err)
	}

	encryptedRefreshToken, err := s.cipher.EncryptString(tokens.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("[HandleCallback] failed to encrypt refresh token: %w", err)
	}

	sessionID := sessions.NewID()
	session := sessions.Session{
		AccessToken:           tokens.AccessToken,
		AccessTokenExpiresAt:  tokens.Expiry,
		EncryptedRefreshToken: encryptedRefreshToken,
		IDToken:               tokens.IDToken,
		CreatedAt:             time.Now(),
	}

	if err := s.sessionRepo.Save(ctx, sessionID, session, s.sessionLifetime); err != nil {
		return "", fmt.Errorf("[HandleCallback] %w", err)
	}

	// Auxiliary profile enrichment; never aborts a successful callback.
	if _, err := s.provider.Userinfo(ctx, tokens.AccessToken); err != nil {
		log.Debug().Err(err).Msg("userinfo_enrichment_failed")
	}

	log.Info().Msg("session_created")
	return sessionID, nil
}

// ValidateAndRefresh validates a session, transparently refreshes an expired
// access token, and rotates the session ID. The rotation happens on every
// validated request to bound how long any single session ID stays usable
// (session fixation / cookie replay mitigation): the old store entry is
// deleted and the session is rewritten under a fresh ID with a full TTL.
//
// Callers must set newID as the session cookie on every response path that
// follows, including error responses.
func (s *SessionService) ValidateAndRefresh(ctx context.Context, sessionID string) (session sessions.Session, newID string, err error) {
	if sessionID == "" {
		return sessions.Session{}, "", ErrNoSession
	}

	session, err = s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return sessions.Session{}, "", ErrInvalidSession
	}

	if session.AccessTokenExpired() {
		session, err = s.refreshSession(ctx, sessionID, session)
		if err != nil {
			return sessions.Session{}, "", err
		}
	}

	newID = sessions.NewID()
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Msg("session_rotation_delete_failed")
	}
	if err := s.sessionRepo.Save(ctx, newID, session, s.sessionLifetime); err != nil {
		return sessions.Session{}, "", fmt.Errorf("[ValidateAndRefresh] %w", err)
	}

	return session, newID, nil
}

// refreshSession decrypts the stored refresh token and exchanges it for a new
// access token. Decrypt failures (rotated key, tampered ciphertext) and
// provider rejections are equivalent: the session cannot be recovered and is
// destroyed, forcing re-authentication. Refresh is never retried inline.
func (s *SessionService) refreshSession(ctx context.Context, sessionID string, session sessions.Session) (sessions.Session, error) {
	refreshToken, err := s.cipher.DecryptString(session.EncryptedRefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh_token_decrypt_failed")
		s.destroySession(ctx, sessionID)
		return sessions.Session{}, ErrSessionExpired
	}

	tokens, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		s.destroySession(ctx, sessionID)
		return sessions.Session{}, ErrSessionExpired
	}

	session.AccessToken = tokens.AccessToken
	session.AccessTokenExpiresAt = tokens.Expiry

	// Providers with refresh-token rotation return a new token; re-encrypt
	// and store it, otherwise the stored one stays valid.
	if tokens.RefreshToken != "" {
		encrypted, err := s.cipher.EncryptString(tokens.RefreshToken)
		if err != nil {
			s.destroySession(ctx, sessionID)
			return sessions.Session{}, ErrSessionExpired
		}
		session.EncryptedRefreshToken = encrypted
	}
	if tokens.IDToken != "" {
		session.IDToken = tokens.IDToken
	}

	log.Debug().Msg("access_token_refreshed")
	return session, nil
}

// Logout destroys the session locally and notifies the provider best-effort.
// It is idempotent: missing or invalid session IDs still succeed.
func (s *SessionService) Logout(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}

	if session, err := s.sessionRepo.Get(ctx, sessionID); err == nil {
		s.provider.EndSession(ctx, session.IDToken)
	}

	s.destroySession(ctx, sessionID)
	log.Info().Msg("session_destroyed")
}

func (s *SessionService) destroySession(ctx context.Context, sessionID string) {
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Msg("session_delete_failed")
	}
}
