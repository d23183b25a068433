// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/passgate/passgate/internal/session"
)

// SessionCodec binds identities to sessions and resolves them back.
type SessionCodec struct {
	sessions   session.Store
	identities IdentityResolver
	ttl        time.Duration
	logger     *slog.Logger
}

// NewSessionCodec creates a SessionCodec. A non-positive ttl uses session.DefaultTTL.
func NewSessionCodec(sessions session.Store, identities IdentityResolver, ttl time.Duration) (*SessionCodec, error) {
	return NewSessionCodecWithLogger(sessions, identities, ttl, slog.New(slog.DiscardHandler))
}

// NewSessionCodecWithLogger creates a SessionCodec.
func NewSessionCodecWithLogger(sessions session.Store, identities IdentityResolver, ttl time.Duration, logger *slog.Logger) (*SessionCodec, error) {
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if identities == nil {
		return nil, oops.Errorf("identity resolver is required")
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &SessionCodec{
		sessions:   sessions,
		identities: identities,
		ttl:        ttl,
		logger:     logger,
	}, nil
}

// TTL returns the lifetime given to new sessions.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Commit binds identity to a freshly generated session and destroys prior,
// if any. Only the identity key is carried over. The returned session's ID
// must replace the one held by the client.
func (c *SessionCodec) Commit(ctx context.Context, prior *session.Session, identity *Identity) (_ *session.Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.session.commit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if identity == nil {
		return nil, oops.Code("SESSION_COMMIT_FAILED").Errorf("identity is required")
	}

	next, err := session.New(c.ttl)
	if err != nil {
		return nil, oops.Code("SESSION_COMMIT_FAILED").
			With("operation", "generate session").
			Wrap(err)
	}
	next.IdentityKey = identity.Key()

	if err := c.sessions.Set(ctx, next); err != nil {
		return nil, oops.Code("SESSION_COMMIT_FAILED").
			With("operation", "store session").
			With("identity_id", identity.Key()).
			Wrap(err)
	}

	if prior != nil && prior.ID != "" && prior.ID != next.ID {
		if err := c.sessions.Destroy(ctx, prior.ID); err != nil {
			// Leaving the prior record alive would allow fixation.
			_ = c.sessions.Destroy(ctx, next.ID) //nolint:errcheck // rollback; the destroy error is returned
			return nil, oops.Code("SESSION_COMMIT_FAILED").
				With("operation", "destroy prior session").
				Wrap(err)
		}
	}

	span.SetAttributes(attribute.String("identity.id", identity.Key()))
	SessionEvents.WithLabelValues(SessionEventCommit).Inc()
	c.logger.DebugContext(ctx, "session committed", "identity_id", identity.Key())
	return next, nil
}

// Resolve returns the identity bound to sess. It returns (nil, nil) when the
// session is absent, unbound, or bound to an identity that no longer exists.
// Only store failures are returned as errors.
func (c *SessionCodec) Resolve(ctx context.Context, sess *session.Session) (*Identity, error) {
	if !sess.Authenticated() {
		return nil, nil
	}

	id, err := ulid.ParseStrict(sess.IdentityKey)
	if err != nil {
		c.stale(ctx, sess, "malformed identity key")
		return nil, nil
	}

	identity, err := c.identities.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		c.stale(ctx, sess, "identity not found")
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "find identity by id").
			With("identity_id", sess.IdentityKey).
			Wrap(err)
	}
	return identity, nil
}

// ResolveID loads the session with the given ID and resolves its identity.
// An unknown or expired session ID yields (nil, nil, nil).
func (c *SessionCodec) ResolveID(ctx context.Context, id string) (*session.Session, *Identity, error) {
	if id == "" {
		return nil, nil, nil
	}
	sess, err := c.sessions.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	identity, err := c.Resolve(ctx, sess)
	if err != nil {
		return sess, nil, err
	}
	return sess, identity, nil
}

// Clear destroys the session record so its ID can no longer be resolved.
func (c *SessionCodec) Clear(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}
	if err := c.sessions.Destroy(ctx, sess.ID); err != nil {
		return oops.Code("SESSION_CLEAR_FAILED").Wrap(err)
	}
	sess.IdentityKey = ""
	SessionEvents.WithLabelValues(SessionEventClear).Inc()
	return nil
}

// Save persists non-identity changes to sess, such as flash messages.
func (c *SessionCodec) Save(ctx context.Context, sess *session.Session) error {
	if err := c.sessions.Set(ctx, sess); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	return nil
}

// Begin creates a new unauthenticated session without persisting it.
func (c *SessionCodec) Begin() (*session.Session, error) {
	sess, err := session.New(c.ttl)
	if err != nil {
		return nil, oops.Code("SESSION_BEGIN_FAILED").Wrap(err)
	}
	return sess, nil
}

func (c *SessionCodec) stale(ctx context.Context, sess *session.Session, reason string) {
	SessionEvents.WithLabelValues(SessionEventStale).Inc()
	c.logger.DebugContext(ctx, "stale session identity", "reason", reason, "identity_key", sess.IdentityKey)
}
