// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/internal/session/sessiontest"
	"github.com/passgate/passgate/pkg/errutil"
)

// fakeRedis is an in-memory redisClient that records TTLs.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failAll error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return redis.NewStringResult("", f.failAll)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return redis.NewStatusResult("", f.failAll)
	}
	b, ok := value.([]byte)
	if !ok {
		return redis.NewStatusResult("", errors.New("unexpected value type"))
	}
	f.data[key] = b
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return redis.NewIntResult(0, f.failAll)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
		delete(f.data, k)
		delete(f.ttls, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	if f.failAll != nil {
		return redis.NewStatusResult("", f.failAll)
	}
	return redis.NewStatusResult("PONG", nil)
}

func TestRedisStore_Conformance(t *testing.T) {
	sessiontest.RunStoreTests(t, session.NewRedisStoreWithClient(newFakeRedis(), ""))
}

func TestRedisStore_KeysAndTTL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store := session.NewRedisStoreWithClient(fake, "test:")

	s, err := session.New(time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, s))

	ttl, ok := fake.ttls["test:"+s.ID]
	require.True(t, ok, "key should carry the configured prefix")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	store := session.NewRedisStoreWithClient(newFakeRedis(), "")
	assert.Equal(t, session.DefaultRedisPrefix+"abc", store.Key("abc"))
}

func TestRedisStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.failAll = errors.New("connection refused")
	store := session.NewRedisStoreWithClient(fake, "")

	_, err := store.Get(ctx, "id")
	errutil.AssertErrorCode(t, err, "SESSION_GET_FAILED")

	err = store.Set(ctx, &session.Session{ID: "id", ExpiresAt: time.Now().Add(time.Hour)})
	errutil.AssertErrorCode(t, err, "SESSION_SET_FAILED")

	err = store.Destroy(ctx, "id")
	errutil.AssertErrorCode(t, err, "SESSION_DESTROY_FAILED")

	err = store.Ping(ctx)
	errutil.AssertErrorCode(t, err, "SESSION_PING_FAILED")
}

func TestRedisStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.data[session.DefaultRedisPrefix+"bad"] = []byte("{not json")
	store := session.NewRedisStoreWithClient(fake, "")

	_, err := store.Get(ctx, "bad")
	errutil.AssertErrorCode(t, err, "SESSION_DECODE_FAILED")
}

func TestNewRedisStore_RequiresClient(t *testing.T) {
	_, err := session.NewRedisStore(nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is required")
}
