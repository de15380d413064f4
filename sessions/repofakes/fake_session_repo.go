package repofakes

import (
	"context"
	"sync"
	"time"

	"github.com/bionicpro/auth-gateway/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type storedSession struct {
	session   sessions.Session
	expiresAt time.Time
}

// FakeSessionRepo is an in-memory sessions.Repo with TTL semantics for tests.
type FakeSessionRepo struct {
	lock    sync.RWMutex
	records map[string]storedSession

	// Optional error injection
	GetErr    error
	SaveErr   error
	DeleteErr error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{records: make(map[string]storedSession)}
}

func (r *FakeSessionRepo) Get(_ context.Context, id string) (sessions.Session, error) {
	if r.GetErr != nil {
		return sessions.Session{}, r.GetErr
	}
	if id == "" {
		return sessions.Session{}, sessions.ErrEmptyID
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	record, ok := r.records[id]
	if !ok || time.Now().After(record.expiresAt) {
		return sessions.Session{}, sessions.ErrNotFound
	}
	return record.session, nil
}

func (r *FakeSessionRepo) Save(_ context.Context, id string, session sessions.Session, ttl time.Duration) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if id == "" {
		return sessions.ErrEmptyID
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.records[id] = storedSession{session: session, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (r *FakeSessionRepo) Delete(_ context.Context, id string) error {
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	if id == "" {
		return sessions.ErrEmptyID
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.records, id)
	return nil
}

// Len reports the number of live (non-expired) sessions.
func (r *FakeSessionRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	count := 0
	for _, record := range r.records {
		if time.Now().Before(record.expiresAt) {
			count++
		}
	}
	return count
}

// Expire force-expires a stored session without deleting it, simulating TTL
// elapse in the backing store.
func (r *FakeSessionRepo) Expire(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if record, ok := r.records[id]; ok {
		record.expiresAt = time.Now().Add(-time.Second)
		r.records[id] = record
	}
}
