// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/memory"
)

func newIdentity(t *testing.T, email string) *auth.Identity {
	t.Helper()
	identity, err := auth.NewIdentity("Ann", email, "$argon2id$placeholder")
	require.NoError(t, err)
	return identity
}

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("create then find by email and id", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		identity := newIdentity(t, "a@x.com")
		require.NoError(t, repo.Create(ctx, identity))

		byEmail, err := repo.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, identity.ID, byEmail.ID)

		byID, err := repo.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ann", byID.Name)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		require.NoError(t, repo.Create(ctx, newIdentity(t, "a@x.com")))

		err := repo.Create(ctx, newIdentity(t, "a@x.com"))
		require.ErrorIs(t, err, auth.ErrEmailTaken)
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("missing identity is not found", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		_, err := repo.FindByEmail(ctx, "nobody@x.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.FindByID(ctx, ulid.Make())
		require.ErrorIs(t, err, auth.ErrNotFound)
		err = repo.UpdatePassword(ctx, ulid.Make(), "h")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("update password", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		identity := newIdentity(t, "a@x.com")
		require.NoError(t, repo.Create(ctx, identity))

		require.NoError(t, repo.UpdatePassword(ctx, identity.ID, "new-hash"))
		got, err := repo.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
	})

	t.Run("returned identities are copies", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		identity := newIdentity(t, "a@x.com")
		require.NoError(t, repo.Create(ctx, identity))

		got, err := repo.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		got.Name = "mutated"

		again, err := repo.FindByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ann", again.Name)
	})

	t.Run("remove frees the email", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		identity := newIdentity(t, "a@x.com")
		require.NoError(t, repo.Create(ctx, identity))

		repo.Remove(identity.ID)
		_, err := repo.FindByID(ctx, identity.ID)
		require.ErrorIs(t, err, auth.ErrNotFound)
		require.NoError(t, repo.Create(ctx, newIdentity(t, "a@x.com")))
	})

	t.Run("concurrent creates of one email admit exactly one", func(t *testing.T) {
		repo := memory.NewIdentityRepository()
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				identity, err := auth.NewIdentity("Ann", "race@x.com", "h")
				if !assert.NoError(t, err) {
					return
				}
				if repo.Create(ctx, identity) == nil {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
	})
}
