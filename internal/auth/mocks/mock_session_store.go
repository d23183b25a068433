// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/passgate/passgate/internal/session"
)

// MockSessionStore is a mock of session.Store.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a mock whose expectations are asserted on test cleanup.
func NewMockSessionStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Get provides a mock function.
func (m *MockSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

// Set provides a mock function.
func (m *MockSessionStore) Set(ctx context.Context, s *session.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

// Destroy provides a mock function.
func (m *MockSessionStore) Destroy(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
