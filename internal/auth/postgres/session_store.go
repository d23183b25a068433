// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/internal/store"
)

// SessionStore implements session.Store using PostgreSQL. Rows are keyed by
// the SHA-256 of the session ID and the stored payload omits the ID, so a
// database dump cannot be replayed as cookies.
type SessionStore struct {
	pool store.Pool
	now  func() time.Time
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool store.Pool) *SessionStore {
	return &SessionStore{pool: pool, now: time.Now}
}

// HashID returns the storage key for a session ID.
func HashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Get returns the unexpired session with the given ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "sessions.get")
	defer span.End()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM sessions WHERE id_hash = $1 AND expires_at > $2`,
		HashID(id), s.now()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, oops.Code("SESSION_GET_FAILED").With("backend", "postgres").Wrap(err)
	}
	sess, err := session.Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

// Set inserts or replaces the session.
func (s *SessionStore) Set(ctx context.Context, sess *session.Session) error {
	if err := session.ValidateForSet(sess); err != nil {
		return err
	}
	stored := *sess
	stored.ID = ""
	data, err := session.Encode(&stored)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "sessions.set")
	defer span.End()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id_hash, data, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id_hash) DO UPDATE SET data = $2, expires_at = $3, updated_at = $4
	`, HashID(sess.ID), data, sess.ExpiresAt, s.now())
	if err != nil {
		span.RecordError(err)
		return oops.Code("SESSION_SET_FAILED").With("backend", "postgres").Wrap(err)
	}
	return nil
}

// Destroy deletes the session. Deleting a missing session succeeds.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id_hash = $1`, HashID(id))
	if err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").With("backend", "postgres").Wrap(err)
	}
	return nil
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").With("backend", "postgres").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the database connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("SESSION_PING_FAILED").With("backend", "postgres").Wrap(err)
	}
	return nil
}
