// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package server provides capweb's HTTP routes: the home page, the OIDC
// login/callback/logout sequence, the logout confirmation, the auth error
// endpoint and the gated profile page, plus health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/capweb/gate"
	"github.com/hashicorp/capweb/oidc"
	"github.com/hashicorp/capweb/oidc/callback"
	"github.com/hashicorp/capweb/session"
	"github.com/hashicorp/capweb/views"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes.
const (
	indexPath          = "/"
	loginPath          = gate.DefaultLoginPath
	callbackPath       = "/auth/callback"
	logoutPath         = "/auth/logout"
	logoutCallbackPath = "/logout/callback"
	authErrorPath      = "/auth/error"
	profilePath        = "/profile"
	healthzPath        = "/healthz"
	metricsPath        = "/metrics"
)

// Server routes requests for capweb. Its dependencies are provided
// explicitly and are read-only once it's created, so a Server is safe for
// concurrent use.
type Server struct {
	provider *oidc.Provider
	store    session.Store
	views    *views.Renderer
	gate     *gate.Gate
	metrics  *metrics
	logger   hclog.Logger

	postLoginURL    string
	shutdownTimeout time.Duration

	router *mux.Router
}

// New creates a Server using the provider for authentication and the store
// for sessions.
//
// Supported options: WithLogger, WithPostLoginURL, WithRegistry, WithViews,
// WithShutdownTimeout
func New(p *oidc.Provider, store session.Store, opt ...Option) (*Server, error) {
	const op = "server.New"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case store == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getServerOpts(opt...)

	renderer := opts.withViews
	if renderer == nil {
		var err error
		if renderer, err = views.New(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	registry := opts.withRegistry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		provider:        p,
		store:           store,
		views:           renderer,
		gate:            gate.New(gate.WithLoginPath(loginPath), gate.WithLogger(opts.withLogger.Named("gate"))),
		metrics:         newMetrics(registry),
		logger:          opts.withLogger,
		postLoginURL:    opts.withPostLoginURL,
		shutdownTimeout: opts.withShutdownTimeout,
	}
	if err := s.routes(registry); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *Server) routes(registry *prometheus.Registry) error {
	const op = "Server.routes"
	callbackHandler, err := callback.AuthCode(s.provider, session.FlowReader{}, s.loginSucceeded, s.loginFailed)
	if err != nil {
		return fmt.Errorf("%s: unable to create callback handler: %w", op, err)
	}

	r := mux.NewRouter()
	r.Use(instrument(s.metrics, s.logger))
	r.NotFoundHandler = instrument(s.metrics, s.logger)(http.NotFoundHandler())

	r.HandleFunc(healthzPath, s.handleHealthz).Methods(http.MethodGet)
	r.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	app := r.NewRoute().Subrouter()
	app.Use(session.Middleware(s.store, s.logger.Named("session")))
	app.HandleFunc(indexPath, s.handleIndex).Methods(http.MethodGet)
	app.HandleFunc(loginPath, s.handleLogin).Methods(http.MethodGet)
	app.HandleFunc(callbackPath, callbackHandler).Methods(http.MethodGet)
	app.HandleFunc(logoutPath, s.handleLogout).Methods(http.MethodGet)
	app.HandleFunc(logoutCallbackPath, s.handleLogoutCallback).Methods(http.MethodGet)
	app.HandleFunc(authErrorPath, s.handleAuthError).Methods(http.MethodGet)

	gated := app.NewRoute().Subrouter()
	gated.Use(s.gate.RequireAuth)
	gated.HandleFunc(profilePath, s.handleProfile).Methods(http.MethodGet)

	s.router = r
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully, waiting up to the shutdown timeout for requests in flight.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	const op = "Server.Serve"
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ErrorLog:          s.logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}

	srvCh := make(chan error, 1)
	go func() {
		srvCh <- srv.Serve(l)
	}()
	s.logger.Info("listening", "addr", l.Addr().String())

	select {
	case err := <-srvCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: unable to shut down: %w", op, err)
	}
	return nil
}
