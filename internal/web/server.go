// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package web serves the login, registration and home pages on top of the
// auth core.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/observability"
)

// DefaultPublicPaths bypass session loading.
var DefaultPublicPaths = []string{"/static/**", "/favicon.ico"}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Options configures a Server. Codec, Authenticator and Registrar are required.
type Options struct {
	Addr          string
	Codec         *auth.SessionCodec
	Authenticator *auth.Authenticator
	Registrar     *auth.Registrar
	Cookie        CookieConfig
	// Metrics records per-route request counts and latency when set.
	Metrics *observability.Metrics
	// PublicPaths are glob patterns, with '/' as separator, that skip
	// session loading. Nil means DefaultPublicPaths.
	PublicPaths []string
	Logger      *slog.Logger
}

// Server is the PassGate web front end.
type Server struct {
	addr      string
	codec     *auth.SessionCodec
	authn     *auth.Authenticator
	registrar *auth.Registrar
	cookie    CookieConfig
	metrics   *observability.Metrics
	public    []glob.Glob
	pages     *pages
	logger    *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Codec == nil {
		return nil, oops.Errorf("session codec is required")
	}
	if opts.Authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if opts.Registrar == nil {
		return nil, oops.Errorf("registrar is required")
	}
	if opts.Cookie.Name == "" {
		return nil, oops.Errorf("cookie name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	patterns := opts.PublicPaths
	if patterns == nil {
		patterns = DefaultPublicPaths
	}
	public := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.Code("WEB_INVALID_PATTERN").With("pattern", p).Wrap(err)
		}
		public = append(public, g)
	}

	tmpl, err := loadPages()
	if err != nil {
		return nil, err
	}

	return &Server{
		addr:      opts.Addr,
		codec:     opts.Codec,
		authn:     opts.Authenticator,
		registrar: opts.Registrar,
		cookie:    opts.Cookie,
		metrics:   opts.Metrics,
		public:    public,
		pages:     tmpl,
		logger:    logger,
	}, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.HandleMethodNotAllowed = true

	s.route(router, http.MethodGet, "/", s.pageGuard(auth.RequireAuthenticated, s.handleHome))
	s.route(router, http.MethodGet, "/login", s.pageGuard(auth.RequireUnauthenticated, s.handleLoginForm))
	s.route(router, http.MethodPost, "/login", s.pageGuard(auth.RequireUnauthenticated, s.handleLogin))
	s.route(router, http.MethodGet, "/register", s.pageGuard(auth.RequireUnauthenticated, s.handleRegisterForm))
	s.route(router, http.MethodPost, "/register", s.pageGuard(auth.RequireUnauthenticated, s.handleRegister))
	s.route(router, http.MethodDelete, "/logout", s.handleLogout)
	s.route(router, http.MethodGet, "/api/me", s.apiGuard(s.handleMe))
	router.ServeFiles("/static/*filepath", http.FS(staticFiles()))

	var h http.Handler = router
	h = s.sessions(h)
	h = methodOverride(h)
	return otelhttp.NewHandler(h, "passgate.web")
}

// Start listens and serves in the background. The returned channel
// receives a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown web server").Wrap(err)
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
