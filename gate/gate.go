// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package gate provides the authentication gate: middleware that lets a
// request through to a protected handler only when its session carries a
// user, and otherwise redirects to sign-in preserving the original URI.
package gate

import (
	"net/http"
	"net/url"

	"github.com/hashicorp/capweb/session"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultLoginPath is the sign-in route requests are redirected to.
	DefaultLoginPath = "/auth/login"

	// CallbackURLParam is the query parameter carrying the original request
	// URI to the sign-in route.
	CallbackURLParam = "callbackUrl"
)

// Gate decides whether a request may reach a protected handler.
type Gate struct {
	loginPath string
	logger    hclog.Logger
}

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(*Gate)

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(p string) Option {
	return func(g *Gate) {
		if p != "" {
			g.loginPath = p
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gate.
func New(opt ...Option) *Gate {
	g := &Gate{
		loginPath: DefaultLoginPath,
		logger:    hclog.NewNullLogger(),
	}
	for _, o := range opt {
		if o != nil {
			o(g)
		}
	}
	return g
}

// RequireAuth wraps next so that it only runs for authenticated requests.
// Any other request gets a 302 to the login path with the percent-encoded
// request URI as its callbackUrl. The session is never modified.
//
// The session must already be in the request context (see
// session.Middleware); a request without one is treated as unauthenticated.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := session.FromContext(r.Context()); ok && s.IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}
		target := g.LoginURL(r.URL.RequestURI())
		g.logger.Debug("unauthenticated request", "path", r.URL.Path, "redirect", target)
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// LoginURL returns the login path with returnTo as its callbackUrl.
func (g *Gate) LoginURL(returnTo string) string {
	if returnTo == "" {
		return g.loginPath
	}
	return g.loginPath + "?" + CallbackURLParam + "=" + url.QueryEscape(returnTo)
}
