// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package session

// NewRedisStoreWithClient builds a RedisStore over a minimal client for tests.
func NewRedisStoreWithClient(client redisClient, prefix string) *RedisStore {
	return newRedisStore(client, prefix)
}

// Key exposes the namespaced redis key for tests.
func (r *RedisStore) Key(id string) string {
	return r.key(id)
}
