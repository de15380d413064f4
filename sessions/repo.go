package sessions

import (
	"context"
	"time"
)

// Repo is the persistence interface for sessions. A session exists in the
// store iff it is valid: expiry is enforced by the store's TTL and absence is
// the only invalid state, so there is no separate revocation flag.
type Repo interface {
	// Get returns the session for id, or ErrNotFound if it is absent or its
	// TTL has elapsed.
	Get(ctx context.Context, id string) (Session, error)
	// Save writes the session under id with the given TTL, replacing any
	// previous record and resetting its lifetime.
	Save(ctx context.Context, id string, session Session, ttl time.Duration) error
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}
