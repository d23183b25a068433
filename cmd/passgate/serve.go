// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/observability"
	"github.com/passgate/passgate/internal/web"
	"github.com/passgate/passgate/pkg/errutil"
)

// sweepInterval is how often expired postgres sessions are deleted.
const sweepInterval = 10 * time.Minute

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the PassGate web server together with the metrics and health
listener. The process shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cmd, cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

// runServe runs until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting passgate",
		"version", version,
		"identity_store", cfg.Store.Identities,
		"session_store", cfg.Store.Sessions,
	)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
		Service:     "passgate",
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer tcancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("error flushing traces", "error", err)
		}
	}()

	b, err := openBackends(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("error closing stores", "error", err)
		}
	}()

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hash)
	if err != nil {
		return err
	}
	authn, err := auth.NewAuthenticatorWithLogger(b.identities, hasher, logger)
	if err != nil {
		return err
	}
	registrar, err := auth.NewRegistrarWithLogger(b.identities, hasher, logger)
	if err != nil {
		return err
	}
	codec, err := auth.NewSessionCodecWithLogger(b.sessions, b.identities, cfg.Session.TTL, logger)
	if err != nil {
		return err
	}

	var obs *observability.Server
	var metrics *observability.Metrics
	if cfg.Observability.Addr != "" {
		obs = observability.NewServer(cfg.Observability.Addr, logger)
		auth.RegisterMetrics(obs.Registry())
		for name, check := range b.checks {
			obs.AddCheck(name, check)
		}
		obsErr, startErr := obs.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErr, "observability", logger)
		metrics = obs.Metrics()
	}

	srv, err := web.NewServer(web.Options{
		Addr:          cfg.Server.Addr,
		Codec:         codec,
		Authenticator: authn,
		Registrar:     registrar,
		Cookie: web.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	webErr, err := srv.Start()
	if err != nil {
		if obs != nil {
			stopServer(obs, cfg.Server.ShutdownTimeout, logger)
		}
		return err
	}
	go monitorServerErrors(ctx, cancel, webErr, "web", logger)

	if b.sweeper != nil {
		go sweepExpired(ctx, b.sweeper, sweepInterval, logger)
	}

	logger.Info("passgate ready", "addr", srv.Addr())
	<-ctx.Done()
	logger.Info("shutting down")

	stopServer(srv, cfg.Server.ShutdownTimeout, logger)
	if obs != nil {
		stopServer(obs, cfg.Server.ShutdownTimeout, logger)
	}
	logger.Info("shutdown complete")
	return nil
}

// stoppable is implemented by web.Server and observability.Server.
type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(s stoppable, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// sweepExpired deletes expired sessions every interval until ctx is done.
func sweepExpired(ctx context.Context, s expiredSweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				errutil.LogWarn(logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
