package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces session records in Redis.
const keyPrefix = "session:"

// Default timeouts for Redis connections.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds connection parameters for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisRepo stores sessions in Redis with per-entry TTLs. Redis is the single
// source of truth for session liveness; concurrent rotations resolve by last
// write wins without any in-process locking.
type RedisRepo struct {
	client redis.UniversalClient
}

var _ Repo = (*RedisRepo)(nil)

// NewRedisRepo connects to Redis and verifies the connection with a ping.
func NewRedisRepo(ctx context.Context, cfg RedisConfig) (*RedisRepo, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[NewRedisRepo] failed to connect to redis: %w", err)
	}

	return &RedisRepo{client: client}, nil
}

// NewRedisRepoWithClient wraps a pre-configured client. Used by tests to
// inject a miniredis-backed client.
func NewRedisRepoWithClient(client redis.UniversalClient) *RedisRepo {
	return &RedisRepo{client: client}
}

func (r *RedisRepo) Get(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrEmptyID
	}

	data, err := r.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("[RedisRepo Get] %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return Session{}, fmt.Errorf("[RedisRepo Get] corrupt session record: %w", err)
	}

	return session, nil
}

func (r *RedisRepo) Save(ctx context.Context, id string, session Session, ttl time.Duration) error {
	if id == "" {
		return ErrEmptyID
	}

	data, err := json.Marshal(session)
	if err != nil {
		return errors.Join(ErrSaveSession, err)
	}

	if err := r.client.SetEx(ctx, keyPrefix+id, data, ttl).Err(); err != nil {
		return errors.Join(ErrSaveSession, err)
	}

	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("[RedisRepo Delete] %w", err)
	}

	return nil
}

// Ping reports store reachability for the health endpoint.
func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client exposes the underlying connection so other key namespaces can share
// the same pool.
func (r *RedisRepo) Client() redis.UniversalClient {
	return r.client
}

// Close releases the underlying Redis connection pool.
func (r *RedisRepo) Close() error {
	return r.client.Close()
}
