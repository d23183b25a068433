// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package sqlite provides an embedded, file-backed identity store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/passgate/passgate/internal/auth"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS identities (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);`

// IdentityRepository implements auth.IdentityRepository over SQLite.
// Timestamps are stored as Unix milliseconds.
type IdentityRepository struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*IdentityRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, oops.Code("IDENTITY_STORE_INIT_FAILED").Errorf("sqlite path is required")
	}

	dsn := path
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("IDENTITY_STORE_INIT_FAILED").With("path", path).Wrap(err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, oops.Code("IDENTITY_STORE_INIT_FAILED").With("path", path).Wrap(err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("IDENTITY_STORE_INIT_FAILED").
			With("path", path).
			With("operation", "apply schema").
			Wrap(err)
	}
	return &IdentityRepository{db: db}, nil
}

// Close releases the database.
func (r *IdentityRepository) Close() error {
	return r.db.Close()
}

// Ping checks that the database is reachable.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return oops.Code("IDENTITY_STORE_UNAVAILABLE").With("backend", "sqlite").Wrap(err)
	}
	return nil
}

// Create inserts a new identity. A duplicate email matches auth.ErrEmailTaken.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		identity.ID.String(),
		identity.Name,
		identity.Email,
		identity.PasswordHash,
		toMillis(identity.CreatedAt),
		toMillis(identity.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "identities.email") {
			return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("id", identity.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindByEmail retrieves an identity by its normalized email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM identities WHERE email = ?`, email)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_QUERY_FAILED").
			With("operation", "find identity by email").
			Wrap(err)
	}
	return identity, nil
}

// FindByID retrieves an identity by key.
func (r *IdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM identities WHERE id = ?`, id.String())
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_QUERY_FAILED").
			With("operation", "find identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return identity, nil
}

// UpdatePassword replaces the stored verifier.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, toMillis(time.Now()), id.String())
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").With("id", id.String()).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").With("id", id.String()).Wrap(err)
	}
	if n == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanIdentity(row *sql.Row) (*auth.Identity, error) {
	var (
		identity         auth.Identity
		idStr            string
		created, updated int64
	)
	if err := row.Scan(&idStr, &identity.Name, &identity.Email, &identity.PasswordHash, &created, &updated); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("id", idStr).Wrapf(err, "corrupt identity id")
	}
	identity.ID = id
	identity.CreatedAt = fromMillis(created)
	identity.UpdatedAt = fromMillis(updated)
	return &identity, nil
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE {
		return strings.Contains(sqliteErr.Error(), column)
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
