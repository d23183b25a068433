// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package session

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/samber/oops"
)

// MemoryStore keeps sessions in process memory using bigcache. Entries are
// evicted after the store's TTL.
type MemoryStore struct {
	cache *bigcache.BigCache
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore whose entries live for ttl.
// Call Close to stop the background cleaner.
func NewMemoryStore(ctx context.Context, ttl time.Duration) (*MemoryStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, oops.Code("SESSION_STORE_INIT_FAILED").With("backend", "memory").Wrap(err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

// Get returns the session with the given ID.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	data, err := m.cache.Get(id)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("backend", "memory").Wrap(err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(m.now()) {
		_ = m.cache.Delete(id) //nolint:errcheck // entry may already be gone
		return nil, ErrNotFound
	}
	return s, nil
}

// Set stores the session.
func (m *MemoryStore) Set(_ context.Context, s *Session) error {
	if err := ValidateForSet(s); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := m.cache.Set(s.ID, data); err != nil {
		return oops.Code("SESSION_SET_FAILED").With("backend", "memory").Wrap(err)
	}
	return nil
}

// Destroy removes the session.
func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	err := m.cache.Delete(id)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").With("backend", "memory").Wrap(err)
	}
	return nil
}

// Len returns the number of cached entries, including expired ones not yet evicted.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close stops the background cleaner and releases memory.
func (m *MemoryStore) Close() error {
	if err := m.cache.Close(); err != nil {
		return oops.Code("SESSION_STORE_CLOSE_FAILED").With("backend", "memory").Wrap(err)
	}
	return nil
}
