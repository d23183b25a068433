// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package postgres provides PostgreSQL implementations of the identity
// repository and the session store. The schema is owned by internal/store.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/store"
)

var tracer = otel.Tracer("passgate/auth/postgres")

const identityColumns = `id, name, email, password_hash, created_at, updated_at`

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool store.Pool
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(pool store.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Create inserts a new identity. A duplicate email matches auth.ErrEmailTaken.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	ctx, span := tracer.Start(ctx, "identities.create")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		identity.ID.String(),
		identity.Name,
		identity.Email,
		identity.PasswordHash,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "identities_email_unique" {
			return oops.Code("IDENTITY_EMAIL_TAKEN").With("email", identity.Email).Wrap(auth.ErrEmailTaken)
		}
		span.RecordError(err)
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("id", identity.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindByEmail retrieves an identity by its normalized email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	ctx, span := tracer.Start(ctx, "identities.find_by_email")
	defer span.End()

	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, oops.Code("IDENTITY_QUERY_FAILED").
			With("operation", "find identity by email").
			Wrap(err)
	}
	return identity, nil
}

// FindByID retrieves an identity by key.
func (r *IdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	ctx, span := tracer.Start(ctx, "identities.find_by_id")
	defer span.End()

	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id.String())
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, oops.Code("IDENTITY_QUERY_FAILED").
			With("operation", "find identity by id").
			With("id", id.String()).
			Wrap(err)
	}
	return identity, nil
}

// UpdatePassword replaces the stored verifier.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id.String(), passwordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Ping checks the database connection.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("IDENTITY_STORE_UNAVAILABLE").With("backend", "postgres").Wrap(err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		identity auth.Identity
		idStr    string
	)
	if err := row.Scan(&idStr, &identity.Name, &identity.Email, &identity.PasswordHash,
		&identity.CreatedAt, &identity.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("id", idStr).Wrapf(err, "corrupt identity id")
	}
	identity.ID = id
	return &identity, nil
}
