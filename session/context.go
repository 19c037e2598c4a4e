// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/capweb/oidc"
	"github.com/hashicorp/go-hclog"
)

type ctxKey struct{}

// NewContext returns a copy of ctx carrying the Session.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the Session carried by ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Middleware loads the request's Session once from the store and carries it
// in the request context for the handlers downstream. A Session that can't
// be loaded is answered with a 500.
func Middleware(store Store, logger hclog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := store.Load(r)
			if err != nil {
				logger.Error("unable to load session", "path", r.URL.Path, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
		})
	}
}

// FlowReader reads the pending login Flow from the Session in the request
// context. It satisfies callback.RequestReader.
type FlowReader struct{}

// Read returns the Session's Flow when its state matches. oidc.ErrNotFound
// is returned when there's no Session, no Flow or the state differs.
func (FlowReader) Read(ctx context.Context, state string) (oidc.Request, error) {
	const op = "FlowReader.Read"
	s, ok := FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%s: no session in context: %w", op, oidc.ErrNotFound)
	}
	if s.Flow == nil || s.Flow.State() != state {
		return nil, fmt.Errorf("%s: no login flow for state: %w", op, oidc.ErrNotFound)
	}
	return s.Flow, nil
}
