// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package auth provides the authentication and session-identity core for PassGate.
//
// # Domain Types
//
// Identities should be created with NewIdentity, which validates the name,
// normalizes the email and assigns a fresh ULID key. Repository
// implementations receive pre-validated identities.
//
// # Components
//
//   - PasswordHasher (Argon2idHasher) - verifier creation and constant-time comparison
//   - IdentityResolver / IdentityRepository - lookups supplied by a store
//   - Authenticator - Authenticate(email, secret) returns a tagged Outcome
//   - Registrar - creates identities
//   - SessionCodec - Commit (rotating the session ID), Resolve, Clear
//   - Decide - the access guard state machine
//
// Every rejection kind collapses to PublicRejectionMessage for display. The
// kind itself is only logged and counted.
package auth
