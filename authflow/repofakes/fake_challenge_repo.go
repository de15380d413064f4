package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/bionicpro/auth-gateway/authflow"
)

var _ authflow.Repo = (*FakeChallengeRepo)(nil)

type storedChallenge struct {
	challenge authflow.Challenge
	expiresAt time.Time
}

// FakeChallengeRepo is an in-memory authflow.Repo with TTL and single-use
// semantics for tests.
type FakeChallengeRepo struct {
	lock       sync.Mutex
	challenges map[string]storedChallenge

	PutErr error
}

func NewFakeChallengeRepo() *FakeChallengeRepo {
	return &FakeChallengeRepo{challenges: make(map[string]storedChallenge)}
}

func (r *FakeChallengeRepo) Put(_ context.Context, state string, challenge authflow.Challenge) error {
	if r.PutErr != nil {
		return r.PutErr
	}
	if state == "" {
		return authflow.ErrEmptyState
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.challenges[state] = storedChallenge{
		challenge: challenge,
		expiresAt: time.Now().Add(authflow.ChallengeTTL),
	}
	return nil
}

func (r *FakeChallengeRepo) Consume(_ context.Context, state string) (authflow.Challenge, error) {
	if state == "" {
		return authflow.Challenge{}, authflow.ErrEmptyState
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	stored, ok := r.challenges[state]
	if !ok {
		return authflow.Challenge{}, authflow.ErrStateNotFound
	}
	delete(r.challenges, state)

	if time.Now().After(stored.expiresAt) {
		return authflow.Challenge{}, authflow.ErrStateNotFound
	}
	return stored.challenge, nil
}

// Expire force-expires a stored challenge, simulating TTL elapse.
func (r *FakeChallengeRepo) Expire(state string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if stored, ok := r.challenges[state]; ok {
		stored.expiresAt = time.Now().Add(-time.Second)
		r.challenges[state] = stored
	}
}

// States returns the states currently held, consumed or not yet consumed.
func (r *FakeChallengeRepo) States() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	states := make([]string, 0, len(r.challenges))
	for state := range r.challenges {
		states = append(states, state)
	}
	return states
}
