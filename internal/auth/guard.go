// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import "context"

// Redirect targets used by the guard.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// State is the authentication state observed for one request.
type State int

// Observed request states.
const (
	StateUnauthenticated State = iota
	StateAuthenticated
)

// String returns the state name.
func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Policy is an authentication precondition for a handler.
type Policy int

// Guard policies.
const (
	// RequireAuthenticated admits only requests with a resolved identity.
	RequireAuthenticated Policy = iota
	// RequireUnauthenticated admits only anonymous requests, keeping
	// signed-in users out of the login and registration forms.
	RequireUnauthenticated
)

// String returns the policy name.
func (p Policy) String() string {
	if p == RequireUnauthenticated {
		return "require_unauthenticated"
	}
	return "require_authenticated"
}

// Decision is the guard's verdict: proceed to the handler, or redirect.
type Decision struct {
	Proceed  bool
	Redirect string
}

// Decide applies policy to state. It has no side effects.
func Decide(policy Policy, state State) Decision {
	switch {
	case policy == RequireAuthenticated && state != StateAuthenticated:
		return Decision{Redirect: LoginPath}
	case policy == RequireUnauthenticated && state == StateAuthenticated:
		return Decision{Redirect: HomePath}
	default:
		return Decision{Proceed: true}
	}
}

// StateOf derives the request state from a resolved identity.
func StateOf(identity *Identity) State {
	if identity == nil {
		return StateUnauthenticated
	}
	return StateAuthenticated
}

type identityKey struct{}

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity resolved for the request, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity
}
