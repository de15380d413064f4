package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces PKCE challenges in Redis, alongside the session
// records' "session:" prefix.
const keyPrefix = "pkce:"

// RedisRepo stores PKCE challenges in Redis. Consume relies on GETDEL so that
// two callbacks racing on the same state can never both succeed.
type RedisRepo struct {
	client redis.UniversalClient
}

var _ Repo = (*RedisRepo)(nil)

// NewRedisRepo wraps an existing client; the gateway shares one Redis
// connection pool between the session store and the challenge store.
func NewRedisRepo(client redis.UniversalClient) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) Put(ctx context.Context, state string, challenge Challenge) error {
	if state == "" {
		return ErrEmptyState
	}

	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("[RedisRepo Put] %w", err)
	}

	if err := r.client.SetEx(ctx, keyPrefix+state, data, ChallengeTTL).Err(); err != nil {
		return fmt.Errorf("[RedisRepo Put] %w", err)
	}

	return nil
}

func (r *RedisRepo) Consume(ctx context.Context, state string) (Challenge, error) {
	if state == "" {
		return Challenge{}, ErrEmptyState
	}

	data, err := r.client.GetDel(ctx, keyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrStateNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("[RedisRepo Consume] %w", err)
	}

	var challenge Challenge
	if err := json.Unmarshal([]byte(data), &challenge); err != nil {
		return Challenge{}, fmt.Errorf("[RedisRepo Consume] corrupt challenge record: %w", err)
	}

	return challenge, nil
}
