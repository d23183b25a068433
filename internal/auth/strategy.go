// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/passgate/passgate/pkg/errutil"
)

var tracer = otel.Tracer("passgate/auth")

// fallbackDummyHash is used if the configured hasher cannot produce a dummy
// verifier. It will never match any password.
//
//nolint:gosec // G101: intentionally fake verifier for timing equalization, not a credential.
const fallbackDummyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticator verifies submitted credentials against stored identities.
type Authenticator struct {
	identities IdentityRepository
	hasher     PasswordHasher
	logger     *slog.Logger

	dummyOnce sync.Once
	dummy     string
}

// NewAuthenticator creates an Authenticator that discards its logs.
func NewAuthenticator(identities IdentityRepository, hasher PasswordHasher) (*Authenticator, error) {
	return NewAuthenticatorWithLogger(identities, hasher, slog.New(slog.DiscardHandler))
}

// NewAuthenticatorWithLogger creates an Authenticator.
func NewAuthenticatorWithLogger(identities IdentityRepository, hasher PasswordHasher, logger *slog.Logger) (*Authenticator, error) {
	if identities == nil {
		return nil, oops.Errorf("identity repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Authenticator{
		identities: identities,
		hasher:     hasher,
		logger:     logger,
	}, nil
}

// dummyHash returns a verifier produced with the configured work factor so
// that unknown emails cost the same as wrong passwords.
func (a *Authenticator) dummyHash() string {
	a.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err == nil {
			if h, err := a.hasher.Hash(hex.EncodeToString(buf)); err == nil {
				a.dummy = h
				return
			}
		}
		a.dummy = fallbackDummyHash
	})
	return a.dummy
}

// Authenticate resolves email and verifies secret against the stored
// verifier. It never returns an error; failures are reported as outcome
// kinds. Callers must show every rejection with Outcome.PublicMessage.
func (a *Authenticator) Authenticate(ctx context.Context, email, secret string) (outcome Outcome) {
	ctx, span := tracer.Start(ctx, "auth.authenticate")
	defer func() {
		span.SetAttributes(attribute.String("auth.outcome", outcome.Kind.String()))
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, outcome.Kind.String())
		}
		span.End()
		AuthAttempts.WithLabelValues(outcome.Kind.String()).Inc()
		a.logOutcome(ctx, outcome)
	}()

	identity, lookupErr := a.identities.FindByEmail(ctx, NormalizeEmail(email))
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return RejectedInternalError(oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "find identity by email").
				Wrap(lookupErr))
		}
		// Still run verification so response time does not reveal whether
		// the email exists.
		start := time.Now()
		_, _ = a.hasher.Verify(secret, a.dummyHash()) //nolint:errcheck // timing path only
		observeVerify(start)
		return RejectedNoSuchIdentity()
	}

	span.SetAttributes(attribute.String("identity.id", identity.Key()))

	start := time.Now()
	valid, verifyErr := a.hasher.Verify(secret, identity.PasswordHash)
	observeVerify(start)
	if verifyErr != nil {
		return RejectedInternalError(oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			With("identity_id", identity.Key()).
			Wrap(verifyErr))
	}
	if !valid {
		return RejectedBadSecret()
	}

	a.upgradeVerifier(ctx, identity, secret)
	return Authenticated(identity)
}

// upgradeVerifier rehashes secret when the stored verifier is outdated.
// Failure is logged and never affects the login.
func (a *Authenticator) upgradeVerifier(ctx context.Context, identity *Identity, secret string) {
	if !a.hasher.NeedsUpgrade(identity.PasswordHash) {
		return
	}
	newHash, err := a.hasher.Hash(secret)
	if err != nil {
		errutil.LogError(a.logger, "password rehash failed", err)
		return
	}
	if err := a.identities.UpdatePassword(ctx, identity.ID, newHash); err != nil {
		errutil.LogError(a.logger, "password rehash update failed", err)
		return
	}
	identity.PasswordHash = newHash
	a.logger.InfoContext(ctx, "password verifier upgraded", "identity_id", identity.Key())
}

func (a *Authenticator) logOutcome(ctx context.Context, outcome Outcome) {
	switch outcome.Kind {
	case OutcomeAuthenticated:
		a.logger.InfoContext(ctx, "authentication succeeded", "identity_id", outcome.Identity.Key())
	case OutcomeInternalError:
		errutil.LogError(a.logger, "authentication failed", outcome.Err)
	default:
		a.logger.InfoContext(ctx, "authentication rejected", "reason", outcome.Kind.String())
	}
}
