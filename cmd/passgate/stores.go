// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/memory"
	authpg "github.com/passgate/passgate/internal/auth/postgres"
	"github.com/passgate/passgate/internal/auth/sqlite"
	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/observability"
	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/internal/store"
	"github.com/passgate/passgate/internal/xdg"
)

// expiredSweeper is implemented by session stores that need expired rows
// removed periodically.
type expiredSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// backends holds the opened stores and what is needed to close and probe them.
type backends struct {
	identities auth.IdentityRepository
	sessions   session.Store
	checks     map[string]observability.Check
	sweeper    expiredSweeper
	closers    []func() error
}

// Close releases backends in reverse opening order.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openBackends opens the identity store and, when withSessions is set, the
// session store selected by cfg.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger, withSessions bool) (_ *backends, err error) {
	b := &backends{checks: make(map[string]observability.Check)}
	defer func() {
		if err != nil {
			_ = b.Close() //nolint:errcheck // open error takes precedence
		}
	}()

	var pool *pgxpool.Pool
	if cfg.Store.Identities == config.IdentityStorePostgres || (withSessions && cfg.Store.Sessions == config.SessionStorePostgres) {
		pool, err = store.Connect(ctx, cfg.Store.DatabaseURL, store.DefaultBackoff())
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		b.checks["postgres"] = pool.Ping
		logger.Info("connected to postgres")
	}

	switch cfg.Store.Identities {
	case config.IdentityStoreMemory:
		b.identities = memory.NewIdentityRepository()
		logger.Warn("using in-memory identity store; identities are lost on exit")
	case config.IdentityStoreSQLite:
		if err = xdg.EnsureDir(filepath.Dir(cfg.Store.SQLitePath)); err != nil {
			return nil, err
		}
		repo, openErr := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if openErr != nil {
			return nil, openErr
		}
		b.identities = repo
		b.closers = append(b.closers, repo.Close)
		b.checks["sqlite"] = repo.Ping
	case config.IdentityStorePostgres:
		b.identities = authpg.NewIdentityRepository(pool)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "store.identities").Errorf("unknown identity store %q", cfg.Store.Identities)
	}

	if !withSessions {
		return b, nil
	}

	switch cfg.Store.Sessions {
	case config.SessionStoreMemory:
		mem, openErr := session.NewMemoryStore(ctx, cfg.Session.TTL)
		if openErr != nil {
			return nil, openErr
		}
		b.sessions = mem
		b.closers = append(b.closers, mem.Close)
	case config.SessionStoreRedis:
		client, dialErr := session.DialRedis(ctx, cfg.Store.RedisURL, store.DefaultBackoff())
		if dialErr != nil {
			return nil, dialErr
		}
		b.closers = append(b.closers, client.Close)
		rs, newErr := session.NewRedisStore(client, cfg.Store.RedisPrefix)
		if newErr != nil {
			return nil, newErr
		}
		b.sessions = rs
		b.checks["redis"] = rs.Ping
		logger.Info("connected to redis")
	case config.SessionStorePostgres:
		ps := authpg.NewSessionStore(pool)
		b.sessions = ps
		b.sweeper = ps
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "store.sessions").Errorf("unknown session store %q", cfg.Store.Sessions)
	}
	return b, nil
}
