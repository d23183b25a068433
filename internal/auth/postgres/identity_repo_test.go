// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/pkg/errutil"
)

var identityCols = []string{"id", "name", "email", "password_hash", "created_at", "updated_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func TestIdentityRepository_Create(t *testing.T) {
	ann, err := auth.NewIdentity("Ann", "a@x.com", "$argon2id$h")
	require.NoError(t, err)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		code      string
		taken     bool
	}{
		{
			name: "inserts",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs(ann.ID.String(), "Ann", "a@x.com", "$argon2id$h", ann.CreatedAt, ann.UpdatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WillReturnError(&pgconn.PgError{
						Code:           pgerrcode.UniqueViolation,
						ConstraintName: "identities_email_unique",
					})
			},
			code:  "IDENTITY_EMAIL_TAKEN",
			taken: true,
		},
		{
			name: "duplicate primary key is not an email conflict",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WillReturnError(&pgconn.PgError{
						Code:           pgerrcode.UniqueViolation,
						ConstraintName: "identities_pkey",
					})
			},
			code: "IDENTITY_CREATE_FAILED",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WillReturnError(errors.New("connection refused"))
			},
			code: "IDENTITY_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			err := NewIdentityRepository(mock).Create(context.Background(), ann)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
			assert.Equal(t, tt.taken, errors.Is(err, auth.ErrEmailTaken))
		})
	}
}

func TestIdentityRepository_FindByEmail(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM identities WHERE email = \$1`).
			WithArgs("a@x.com").
			WillReturnRows(pgxmock.NewRows(identityCols).
				AddRow(id.String(), "Ann", "a@x.com", "h", now, now))

		identity, err := NewIdentityRepository(mock).FindByEmail(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, id, identity.ID)
		assert.Equal(t, "Ann", identity.Name)
		assert.Equal(t, now, identity.CreatedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM identities WHERE email = \$1`).
			WithArgs("nobody@x.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewIdentityRepository(mock).FindByEmail(context.Background(), "nobody@x.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "IDENTITY_NOT_FOUND")
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM identities WHERE email = \$1`).
			WillReturnError(errors.New("connection reset"))

		_, err := NewIdentityRepository(mock).FindByEmail(context.Background(), "a@x.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "IDENTITY_QUERY_FAILED")
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM identities WHERE email = \$1`).
			WillReturnRows(pgxmock.NewRows(identityCols).
				AddRow("not-a-ulid", "Ann", "a@x.com", "h", now, now))

		_, err := NewIdentityRepository(mock).FindByEmail(context.Background(), "a@x.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "IDENTITY_QUERY_FAILED")
	})
}

func TestIdentityRepository_FindByID(t *testing.T) {
	id := ulid.Make()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM identities WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(identityCols).
				AddRow(id.String(), "Ann", "a@x.com", "h", now, now))

		identity, err := NewIdentityRepository(mock).FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", identity.Email)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM identities WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := NewIdentityRepository(mock).FindByID(context.Background(), id)
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorContext(t, err, "id", id.String())
	})
}

func TestIdentityRepository_UpdatePassword(t *testing.T) {
	id := ulid.Make()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		code      string
	}{
		{
			name: "updates",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE identities SET password_hash`).
					WithArgs(id.String(), "new", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
		},
		{
			name: "missing identity",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE identities SET password_hash`).
					WithArgs(id.String(), "new", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			},
			code: "IDENTITY_NOT_FOUND",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`UPDATE identities SET password_hash`).
					WillReturnError(errors.New("read-only transaction"))
			},
			code: "IDENTITY_UPDATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			err := NewIdentityRepository(mock).UpdatePassword(context.Background(), id, "new")
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestIdentityRepository_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	repo := NewIdentityRepository(mock)
	require.NoError(t, repo.Ping(context.Background()))
	errutil.AssertErrorCode(t, repo.Ping(context.Background()), "IDENTITY_STORE_UNAVAILABLE")
	assert.NoError(t, mock.ExpectationsWereMet())
}
