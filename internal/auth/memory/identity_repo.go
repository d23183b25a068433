// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package memory provides an in-process identity store. Data is lost on exit.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
)

// IdentityRepository implements auth.IdentityRepository with maps guarded by
// an RWMutex. Returned identities are copies.
type IdentityRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]auth.Identity
	byEmail map[string]ulid.ULID
}

// NewIdentityRepository creates an empty IdentityRepository.
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		byID:    make(map[ulid.ULID]auth.Identity),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new identity.
func (r *IdentityRepository) Create(_ context.Context, identity *auth.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[identity.Email]; taken {
		return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
	}
	if _, exists := r.byID[identity.ID]; exists {
		return oops.Code("IDENTITY_CREATE_FAILED").With("id", identity.ID.String()).Errorf("identity id already exists")
	}
	r.byID[identity.ID] = *identity
	r.byEmail[identity.Email] = identity.ID
	return nil
}

// FindByEmail retrieves an identity by its normalized email.
func (r *IdentityRepository) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	identity := r.byID[id]
	return &identity, nil
}

// FindByID retrieves an identity by key.
func (r *IdentityRepository) FindByID(_ context.Context, id ulid.ULID) (*auth.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return &identity, nil
}

// UpdatePassword replaces the stored verifier.
func (r *IdentityRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	identity.PasswordHash = passwordHash
	r.byID[id] = identity
	return nil
}

// Remove deletes an identity. Sessions bound to it become stale.
func (r *IdentityRepository) Remove(id ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity, ok := r.byID[id]; ok {
		delete(r.byEmail, identity.Email)
		delete(r.byID, id)
	}
}

// Len returns the number of stored identities.
func (r *IdentityRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
