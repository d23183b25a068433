// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package sessiontest provides a behavioural test suite shared by every
// session.Store implementation.
package sessiontest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/session"
)

// RunStoreTests exercises the session.Store contract against store.
func RunStoreTests(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("set then get round trips", func(t *testing.T) {
		s, err := session.New(time.Hour)
		require.NoError(t, err)
		s.IdentityKey = "01HZZZZZZZZZZZZZZZZZZZZZZZ"
		s.AddFlash("hello")

		require.NoError(t, store.Set(ctx, s))
		t.Cleanup(func() { _ = store.Destroy(ctx, s.ID) })

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.IdentityKey, got.IdentityKey)
		assert.Equal(t, []string{"hello"}, got.Flash)
		assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Second)
	})

	t.Run("set replaces existing record", func(t *testing.T) {
		s, err := session.New(time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, s))
		t.Cleanup(func() { _ = store.Destroy(ctx, s.ID) })

		s.IdentityKey = "replaced"
		require.NoError(t, store.Set(ctx, s))

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "replaced", got.IdentityKey)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.Get(ctx, "does-not-exist")
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("destroy removes record", func(t *testing.T) {
		s, err := session.New(time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, s))

		require.NoError(t, store.Destroy(ctx, s.ID))

		_, err = store.Get(ctx, s.ID)
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("destroy is idempotent", func(t *testing.T) {
		require.NoError(t, store.Destroy(ctx, "never-existed"))
	})

	t.Run("expired record is not found", func(t *testing.T) {
		s, err := session.New(time.Hour)
		require.NoError(t, err)
		s.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, store.Set(ctx, s))
		t.Cleanup(func() { _ = store.Destroy(ctx, s.ID) })

		_, err = store.Get(ctx, s.ID)
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("rejects session without id", func(t *testing.T) {
		require.Error(t, store.Set(ctx, &session.Session{}))
	})

	t.Run("concurrent writers do not interfere", func(t *testing.T) {
		const n = 16
		ids := make([]string, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := session.New(time.Hour)
				if !assert.NoError(t, err) {
					return
				}
				s.IdentityKey = s.ID
				ids[i] = s.ID
				assert.NoError(t, store.Set(ctx, s))
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			if id == "" {
				continue
			}
			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, got.IdentityKey)
			_ = store.Destroy(ctx, id)
		}
	})
}
