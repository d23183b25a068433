// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/pkg/errutil"
)

// registrationFailedMessage is shown when registration fails for a reason
// the user cannot fix.
const registrationFailedMessage = "registration failed, please try again"

type meResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity := auth.IdentityFromContext(r.Context())
	s.render(w, r, "home", pageData{Title: "Home", Name: identity.Name})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.render(w, r, "login", pageData{Title: "Login", Flash: s.popFlash(r)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	outcome := s.authn.Authenticate(ctx, r.PostFormValue("email"), r.PostFormValue("password"))
	if !outcome.OK() {
		s.flashRedirect(w, r, outcome.PublicMessage(), auth.LoginPath)
		return
	}

	st := stateFrom(ctx)
	next, err := s.codec.Commit(ctx, st.sess, outcome.Identity)
	if err != nil {
		errutil.LogError(s.logger, "session commit failed", err)
		s.flashRedirect(w, r, auth.PublicRejectionMessage, auth.LoginPath)
		return
	}
	st.sess, st.identity = next, outcome.Identity
	s.setCookie(w, next)
	http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
}

func (s *Server) handleRegisterForm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.render(w, r, "register", pageData{Title: "Register", Flash: s.popFlash(r)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, err := s.registrar.Register(r.Context(),
		r.PostFormValue("name"),
		r.PostFormValue("email"),
		r.PostFormValue("password"))
	// A taken email ends like a successful registration so the form does
	// not reveal which addresses have accounts.
	if errors.Is(err, auth.ErrEmailTaken) {
		s.logger.InfoContext(r.Context(), "registration for an existing email")
		err = nil
	}
	if err != nil {
		s.flashRedirect(w, r, registrationMessage(err), "/register")
		return
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st := stateFrom(r.Context())
	if err := s.codec.Clear(r.Context(), st.sess); err != nil {
		errutil.LogError(s.logger, "logout failed", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	st.sess, st.identity = nil, nil
	s.expireCookie(w)
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		ID:    identity.Key(),
		Name:  identity.Name,
		Email: identity.Email,
	})
}

// registrationMessage maps a registration error to text safe to show.
func registrationMessage(err error) string {
	if strings.HasPrefix(errutil.Code(err), "IDENTITY_INVALID_") {
		return err.Error()
	}
	return registrationFailedMessage
}

// flashRedirect queues msg on the session, creating one if needed, and
// redirects to target.
func (s *Server) flashRedirect(w http.ResponseWriter, r *http.Request, msg, target string) {
	ctx := r.Context()
	st := stateFrom(ctx)
	created := false
	if st.sess == nil {
		sess, err := s.codec.Begin()
		if err != nil {
			errutil.LogError(s.logger, "session begin failed", err)
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		st.sess, created = sess, true
	}

	st.sess.AddFlash(msg)
	if err := s.codec.Save(ctx, st.sess); err != nil {
		errutil.LogError(s.logger, "flash save failed", err)
	} else if created {
		s.setCookie(w, st.sess)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// popFlash returns and clears queued flash messages.
func (s *Server) popFlash(r *http.Request) []string {
	st := stateFrom(r.Context())
	if st.sess == nil || len(st.sess.Flash) == 0 {
		return nil
	}
	msgs := st.sess.PopFlash()
	if err := s.codec.Save(r.Context(), st.sess); err != nil {
		errutil.LogError(s.logger, "flash clear failed", err)
	}
	return msgs
}

func (s *Server) setCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
