// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/text/unicode/norm"
)

// Identity field constraints.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254
)

// Identity is one registrant.
type Identity struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the identity key stored in a session binding.
func (i *Identity) Key() string {
	return i.ID.String()
}

// NewIdentity creates an Identity with a fresh ID after validating name and
// email. The email is normalized with NormalizeEmail.
func NewIdentity(name, email, passwordHash string) (*Identity, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	normalized := NormalizeEmail(email)
	if err := ValidateEmail(normalized); err != nil {
		return nil, err
	}

	if passwordHash == "" {
		return nil, oops.Code("IDENTITY_INVALID").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Identity{
		ID:           ulid.Make(),
		Name:         name,
		Email:        normalized,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail folds an email into its canonical lookup form: NFKC,
// trimmed, lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if name == "" {
		return oops.Code("IDENTITY_INVALID_NAME").Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return oops.Code("IDENTITY_INVALID_NAME").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateEmail checks that email is a bare addr-spec.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("IDENTITY_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("IDENTITY_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d bytes", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("IDENTITY_INVALID_EMAIL").
			With("email", email).
			Errorf("email address is not valid")
	}
	return nil
}

// IdentityResolver looks identities up. Both lookups return an error
// matching ErrNotFound when no identity exists.
type IdentityResolver interface {
	// FindByEmail retrieves an identity by its normalized email.
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// FindByID retrieves an identity by its key.
	FindByID(ctx context.Context, id ulid.ULID) (*Identity, error)
}

// IdentityRepository manages identity persistence.
type IdentityRepository interface {
	IdentityResolver

	// Create stores a new identity. Returns an error matching ErrEmailTaken
	// when the email is already registered.
	Create(ctx context.Context, identity *Identity) error

	// UpdatePassword replaces the stored verifier.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
