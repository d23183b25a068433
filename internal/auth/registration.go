// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/passgate/passgate/pkg/errutil"
)

// Password length constraints, in characters.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// Registrar creates new identities.
type Registrar struct {
	identities IdentityRepository
	hasher     PasswordHasher
	logger     *slog.Logger
}

// NewRegistrar creates a Registrar that discards its logs.
func NewRegistrar(identities IdentityRepository, hasher PasswordHasher) (*Registrar, error) {
	return NewRegistrarWithLogger(identities, hasher, slog.New(slog.DiscardHandler))
}

// NewRegistrarWithLogger creates a Registrar.
func NewRegistrarWithLogger(identities IdentityRepository, hasher PasswordHasher, logger *slog.Logger) (*Registrar, error) {
	if identities == nil {
		return nil, oops.Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Registrar{identities: identities, hasher: hasher, logger: logger}, nil
}

// ValidatePassword checks password length.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return oops.Code("IDENTITY_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return oops.Code("IDENTITY_INVALID_PASSWORD").
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// Register hashes password and stores a new identity with a fresh key.
// A duplicate email returns an error coded IDENTITY_EMAIL_TAKEN that also
// matches ErrEmailTaken.
func (r *Registrar) Register(ctx context.Context, name, email, password string) (identity *Identity, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() {
		status := "created"
		if err != nil {
			status = "failed"
			span.RecordError(err)
		}
		Registrations.WithLabelValues(status).Inc()
		span.End()
	}()

	// Validate cheap fields before paying for the hash.
	if err := ValidateName(strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	if err := ValidateEmail(NormalizeEmail(email)); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := r.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	identity, err = NewIdentity(name, email, hash)
	if err != nil {
		return nil, err
	}

	if err := r.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("IDENTITY_EMAIL_TAKEN").
				With("email", identity.Email).
				Wrap(err)
		}
		errutil.LogError(r.logger, "identity create failed", err)
		return nil, oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "store identity").
			Wrap(err)
	}

	r.logger.InfoContext(ctx, "identity registered", "identity_id", identity.Key())
	return identity, nil
}
