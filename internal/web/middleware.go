// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/julienschmidt/httprouter"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/pkg/errutil"
)

// maxFormBytes bounds urlencoded request bodies.
const maxFormBytes = 64 << 10

// overridable lists the methods a POST may be rewritten to.
var overridable = map[string]bool{
	http.MethodDelete: true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
}

// requestState is the session and identity observed for one request.
// sess stays nil until something needs to be stored.
type requestState struct {
	sess     *session.Session
	identity *auth.Identity
}

type stateKey struct{}

func stateFrom(ctx context.Context) *requestState {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		return st
	}
	return &requestState{}
}

// methodOverride lets HTML forms reach DELETE routes. The method is taken
// from the _method query parameter, then the form field of the same name.
func methodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
			method := r.URL.Query().Get("_method")
			if method == "" {
				method = r.PostFormValue("_method")
			}
			if method = strings.ToUpper(method); overridable[method] {
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isPublic(path string) bool {
	for _, g := range s.public {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// sessions resolves the session cookie into a requestState. Unknown or
// expired IDs and stale identities leave the request unauthenticated.
func (s *Server) sessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		st := &requestState{}
		if c, err := r.Cookie(s.cookie.Name); err == nil && c.Value != "" {
			sess, identity, err := s.codec.ResolveID(ctx, c.Value)
			if err != nil {
				errutil.LogError(s.logger, "session resolve failed", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			st.sess, st.identity = sess, identity
			s.refresh(ctx, sess)
		}

		ctx = context.WithValue(ctx, stateKey{}, st)
		ctx = auth.WithIdentity(ctx, st.identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// refresh extends a session that has used more than half its lifetime.
func (s *Server) refresh(ctx context.Context, sess *session.Session) {
	if sess == nil {
		return
	}
	now := time.Now().UTC()
	ttl := s.codec.TTL()
	if sess.ExpiresAt.Sub(now) > ttl/2 {
		return
	}
	sess.Touch(now, ttl)
	if err := s.codec.Save(ctx, sess); err != nil {
		errutil.LogError(s.logger, "session refresh failed", err)
	}
}

// pageGuard redirects requests that do not satisfy policy.
func (s *Server) pageGuard(policy auth.Policy, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		state := auth.StateOf(auth.IdentityFromContext(r.Context()))
		if d := auth.Decide(policy, state); !d.Proceed {
			http.Redirect(w, r, d.Redirect, http.StatusFound)
			return
		}
		next(w, r, ps)
	}
}

// apiGuard answers 401 JSON instead of redirecting.
func (s *Server) apiGuard(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		state := auth.StateOf(auth.IdentityFromContext(r.Context()))
		if d := auth.Decide(auth.RequireAuthenticated, state); !d.Proceed {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			return
		}
		next(w, r, ps)
	}
}

// route registers h and records its metrics under the route pattern.
func (s *Server) route(router *httprouter.Router, method, path string, h httprouter.Handle) {
	if s.metrics == nil {
		router.Handle(method, path, h)
		return
	}
	router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		m := httpsnoop.CaptureMetricsFn(w, func(w http.ResponseWriter) {
			h(w, r, ps)
		})
		s.metrics.RequestsTotal.WithLabelValues(path, method, strconv.Itoa(m.Code)).Inc()
		s.metrics.RequestDuration.WithLabelValues(path).Observe(m.Duration.Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}
