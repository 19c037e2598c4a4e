// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/capweb/gate"
	"github.com/hashicorp/capweb/oidc"
	"github.com/hashicorp/capweb/oidc/callback"
	"github.com/hashicorp/capweb/session"
	"github.com/hashicorp/capweb/views"
	"golang.org/x/text/language"
)

// authFailedBody is the exact body of the auth error endpoint.
var authFailedBody = mustMarshal(map[string]string{"error": "Authentication failed"})

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// currentSession returns the session resolved by session.Middleware. Routes
// are only reachable through the middleware, so it is always present.
func currentSession(r *http.Request) *session.Session {
	if s, ok := session.FromContext(r.Context()); ok {
		return s
	}
	return session.New()
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	if err := s.views.Render(w, http.StatusOK, name, data); err != nil {
		s.serverError(w, r, "unable to render view", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, views.Index, views.IndexData{
		IsAuthenticated: currentSession(r).IsAuthenticated(),
		LoginURL:        loginPath,
	})
}

// handleLogin starts a login: it records a new flow in the session and
// redirects to the provider's authorization endpoint.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	oidcRequest, err := oidc.NewRequest(oidc.DefaultRequestExpiry)
	if err != nil {
		s.serverError(w, r, "unable to create login request", err)
		return
	}
	sess.Flow = session.NewFlow(oidcRequest, localPath(r.URL.Query().Get(gate.CallbackURLParam)))

	authURL, err := s.provider.AuthURL(r.Context(), sess.Flow, oidc.WithUILocales(uiLocales(r)...))
	if err != nil {
		s.serverError(w, r, "unable to create auth url", err)
		return
	}
	if err := s.store.Save(w, r, sess); err != nil {
		s.serverError(w, r, "unable to save session", err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// maxUILocales caps how many of the browser's languages are passed on.
const maxUILocales = 5

// uiLocales returns the request's Accept-Language preferences, most
// preferred first. An unparsable header yields none.
func uiLocales(r *http.Request) []language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil {
		return nil
	}
	if len(tags) > maxUILocales {
		tags = tags[:maxUILocales]
	}
	return tags
}

// localPath returns p if it's a path on this server, otherwise "".
// Browsers drop tabs and newlines from a Location, so p must also parse
// as a URL without control characters, scheme or host.
func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return ""
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return p
}

// loginSucceeded is the callback's success response: it completes the
// session with the user's identity and lands on the return path.
func (s *Server) loginSucceeded(state string, t *oidc.Token, w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id, err := s.provider.Identity(r.Context(), t)
	if err != nil {
		s.loginFailed(state, nil, err, w, r)
		return
	}
	returnTo := s.postLoginURL
	if sess.Flow != nil && sess.Flow.ReturnTo != "" {
		returnTo = sess.Flow.ReturnTo
	}
	sess.Login(session.NewUser(id, t.IDToken))
	if err := s.store.Save(w, r, sess); err != nil {
		sess.User = nil
		s.loginFailed(state, nil, err, w, r)
		return
	}
	s.metrics.loginsTotal.WithLabelValues("success").Inc()
	s.logger.Info("login succeeded", "sub", id.Subject)
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// loginFailed is the callback's error response: the pending flow is dropped
// and the browser sent to the auth error endpoint.
func (s *Server) loginFailed(state string, authErr *callback.AuthenErrorResponse, err error, w http.ResponseWriter, r *http.Request) {
	s.metrics.loginsTotal.WithLabelValues("failure").Inc()
	switch {
	case authErr != nil:
		s.logger.Warn("login failed", "state", state, "error", authErr.String())
	default:
		s.logger.Warn("login failed", "state", state, "error", err)
	}
	sess := currentSession(r)
	sess.Flow = nil
	if err := s.store.Save(w, r, sess); err != nil {
		s.logger.Error("unable to clear login flow", "error", err)
	}
	http.Redirect(w, r, authErrorPath, http.StatusFound)
}

// handleLogout clears the local session before sending the browser to the
// provider's end-session endpoint.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if !sess.IsAuthenticated() {
		if err := s.store.Delete(w, r, sess); err != nil {
			s.logger.Warn("unable to delete unauthenticated session", "error", err)
		}
		http.Redirect(w, r, logoutCallbackPath, http.StatusFound)
		return
	}

	idToken, sub := sess.User.IDToken, sess.User.Sub
	if err := s.store.Delete(w, r, sess); err != nil {
		s.serverError(w, r, "unable to delete session", err)
		return
	}
	s.metrics.logoutsTotal.Inc()

	logoutURL, err := s.provider.LogoutURL(oidc.IDToken(idToken), sub)
	if err != nil {
		if !errors.Is(err, oidc.ErrUnsupportedLogout) {
			s.logger.Error("unable to create logout url", "error", err)
		}
		logoutURL = s.provider.Config().PostLogoutRedirectURL
		if logoutURL == "" {
			logoutURL = logoutCallbackPath
		}
	}
	s.logger.Info("logout", "sub", sub)
	http.Redirect(w, r, logoutURL, http.StatusFound)
}

func (s *Server) handleLogoutCallback(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, views.LoggedOut, views.LoggedOutData{
		IsAuthenticated: currentSession(r).IsAuthenticated(),
	})
}

func (s *Server) handleAuthError(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(authFailedBody)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	userJSON, err := json.MarshalIndent(sess.User, "", "  ")
	if err != nil {
		s.serverError(w, r, "unable to encode user", err)
		return
	}
	s.render(w, r, views.Profile, views.ProfileData{
		IsAuthenticated: sess.IsAuthenticated(),
		UserJSON:        string(userJSON),
		LogoutURL:       logoutPath,
	})
}
