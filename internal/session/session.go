// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package session provides server-side session records and their stores.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/oops"
)

// DefaultTTL is the idle lifetime of a session record.
const DefaultTTL = 24 * time.Hour

// idBytes is the session ID entropy (256 bits).
const idBytes = 32

// ErrNotFound is returned when a session ID is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Session is a server-side session record. An empty IdentityKey means the
// session is not authenticated.
type Session struct {
	ID          string    `json:"id,omitempty"`
	IdentityKey string    `json:"identity_key,omitempty"`
	Flash       []string  `json:"flash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store persists sessions by ID. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the session, or an error matching ErrNotFound when it is
	// unknown or expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Set creates or replaces the session.
	Set(ctx context.Context, s *Session) error

	// Destroy removes the session. Destroying an unknown ID is not an error.
	Destroy(ctx context.Context, id string) error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GenerateID returns a cryptographically random, URL-safe session ID.
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New creates an empty session with a fresh ID that expires after ttl.
func New(ttl time.Duration) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpired reports whether the session has passed its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Touch extends the expiry to now+ttl.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.ExpiresAt = now.Add(ttl)
}

// AddFlash queues a one-shot message for the next page render.
func (s *Session) AddFlash(msg string) {
	s.Flash = append(s.Flash, msg)
}

// PopFlash returns and clears queued flash messages.
func (s *Session) PopFlash() []string {
	msgs := s.Flash
	s.Flash = nil
	return msgs
}

// Authenticated reports whether an identity key is bound.
func (s *Session) Authenticated() bool {
	return s != nil && s.IdentityKey != ""
}

// Encode serializes s for storage.
func Encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

// Decode parses a stored session.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	return &s, nil
}

// ValidateForSet rejects sessions that cannot be stored.
func ValidateForSet(s *Session) error {
	if s == nil || s.ID == "" {
		return oops.Code("SESSION_INVALID").Errorf("session id is required")
	}
	return nil
}
