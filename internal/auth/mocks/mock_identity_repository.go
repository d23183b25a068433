// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package mocks provides testify mocks for auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/passgate/passgate/internal/auth"
)

// MockIdentityRepository is a mock of auth.IdentityRepository.
type MockIdentityRepository struct {
	mock.Mock
}

// NewMockIdentityRepository creates a mock whose expectations are asserted on test cleanup.
func NewMockIdentityRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockIdentityRepository {
	m := &MockIdentityRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockIdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

// FindByEmail provides a mock function.
func (m *MockIdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	args := m.Called(ctx, email)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

// FindByID provides a mock function.
func (m *MockIdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	args := m.Called(ctx, id)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

// UpdatePassword provides a mock function.
func (m *MockIdentityRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}
