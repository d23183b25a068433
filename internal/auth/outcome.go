// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

// OutcomeKind tags an authentication result.
type OutcomeKind int

// Authentication outcome kinds.
const (
	OutcomeAuthenticated OutcomeKind = iota
	OutcomeNoSuchIdentity
	OutcomeBadSecret
	OutcomeInternalError
)

// PublicRejectionMessage is shown to the user for every rejected attempt.
const PublicRejectionMessage = "invalid credentials"

// String returns the metric and log label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeNoSuchIdentity:
		return "no_such_identity"
	case OutcomeBadSecret:
		return "bad_secret"
	case OutcomeInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one authentication attempt. Identity is set only
// for OutcomeAuthenticated; Err only for OutcomeInternalError.
type Outcome struct {
	Kind     OutcomeKind
	Identity *Identity
	Err      error
}

// Authenticated builds a successful outcome.
func Authenticated(identity *Identity) Outcome {
	return Outcome{Kind: OutcomeAuthenticated, Identity: identity}
}

// RejectedNoSuchIdentity builds the outcome for an unknown email.
func RejectedNoSuchIdentity() Outcome {
	return Outcome{Kind: OutcomeNoSuchIdentity}
}

// RejectedBadSecret builds the outcome for a password mismatch.
func RejectedBadSecret() Outcome {
	return Outcome{Kind: OutcomeBadSecret}
}

// RejectedInternalError builds the outcome for a store or hasher failure.
func RejectedInternalError(cause error) Outcome {
	return Outcome{Kind: OutcomeInternalError, Err: cause}
}

// OK reports whether the attempt authenticated.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeAuthenticated && o.Identity != nil
}

// PublicMessage returns the text safe to show the end user. Every rejection
// kind yields the same message.
func (o Outcome) PublicMessage() string {
	if o.OK() {
		return ""
	}
	return PublicRejectionMessage
}
