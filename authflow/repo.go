package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// ChallengeTTL bounds the login->callback window. A challenge that is not
// consumed within this window expires and the login must be restarted.
const ChallengeTTL = 5 * time.Minute

// Challenge correlates an OAuth state value with the PKCE code verifier issued
// at login initiation. It is written once and consumed (read-then-delete)
// exactly once at callback time; it is never mutated.
type Challenge struct {
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	ErrStateNotFound = errors.New("state not found")
	ErrEmptyState    = errors.New("state cannot be empty")
)

// Repo stores PKCE challenges keyed by the state parameter.
type Repo interface {
	// Put stores the challenge under state with ChallengeTTL.
	Put(ctx context.Context, state string, challenge Challenge) error
	// Consume atomically reads and deletes the challenge for state.
	// A missing, expired, or already-consumed state returns ErrStateNotFound.
	Consume(ctx context.Context, state string) (Challenge, error)
}

// NewState generates a random opaque state value (32 bytes, base64url).
func NewState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("authflow: cannot read from crypto/rand: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
