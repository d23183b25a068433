// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "passgate:session:"

// redisClient is the subset of redis.Cmdable the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps sessions as JSON values with a TTL equal to the time
// remaining before the session expires.
type RedisStore struct {
	client redisClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.Cmdable, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, oops.Errorf("redis client is required")
	}
	return newRedisStore(client, prefix), nil
}

func newRedisStore(client redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Get returns the session with the given ID.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("backend", "redis").Wrap(err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(r.now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Set stores the session. A session that has already expired is deleted
// instead.
func (r *RedisStore) Set(ctx context.Context, s *Session) error {
	if err := ValidateForSet(s); err != nil {
		return err
	}
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Destroy(ctx, s.ID)
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, ttl).Err(); err != nil {
		return oops.Code("SESSION_SET_FAILED").With("backend", "redis").Wrap(err)
	}
	return nil
}

// Destroy removes the session.
func (r *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").With("backend", "redis").Wrap(err)
	}
	return nil
}

// Ping checks the redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return oops.Code("SESSION_PING_FAILED").With("backend", "redis").Wrap(err)
	}
	return nil
}

// DialRedis parses a redis:// URL, connects, and retries the initial ping
// with backoff until ctx is done or attempts are exhausted.
func DialRedis(ctx context.Context, url string, b retry.Backoff) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("SESSION_STORE_INIT_FAILED").With("backend", "redis").Wrap(err)
	}
	client := redis.NewClient(opts)

	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // connect error takes precedence
		return nil, oops.Code("SESSION_STORE_INIT_FAILED").
			With("backend", "redis").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return client, nil
}
