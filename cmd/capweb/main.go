// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command capweb serves a web app that signs users in with an OpenID Connect
// provider and keeps them signed in with a session cookie.
//
// It's configured with environment variables, optionally on top of a YAML
// file named by CAPWEB_CONFIG_FILE. See the config package for the full list.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/capweb/config"
	"github.com/hashicorp/capweb/oidc"
	"github.com/hashicorp/capweb/server"
	"github.com/hashicorp/capweb/session"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "capweb",
		Level:      cfg.LogLevel(),
		JSONFormat: cfg.Log.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pc, err := oidc.NewConfig(
		cfg.Issuer(),
		cfg.OIDC.ClientID,
		cfg.OIDC.ClientSecret,
		[]oidc.Alg{oidc.RS256, oidc.ES256, oidc.EdDSA},
		cfg.OIDC.CallbackURL,
		oidc.WithPostLogoutRedirectURL(cfg.OIDC.PostLogoutURL),
		oidc.WithProviderCA(cfg.OIDC.ProviderCA),
		oidc.WithUserInfo(),
	)
	if err != nil {
		return err
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		logger.Error("provider discovery failed", "issuer", pc.Issuer, "error", err)
		return err
	}
	defer p.Done()
	logger.Named("oidc").Info("discovered provider", "issuer", pc.Issuer, "client_id", pc.ClientID)

	store, closeStore, err := newStore(cfg, logger.Named("session"))
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(p, store,
		server.WithLogger(logger.Named("server")),
		server.WithPostLoginURL(cfg.OIDC.PostLoginURL),
		server.WithRegistry(registry),
	)
	if err != nil {
		return err
	}

	l, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", cfg.Addr(), err)
	}
	return srv.Serve(ctx, l)
}

func newStore(cfg *config.Config, logger hclog.Logger) (session.Store, func(), error) {
	cookie := session.CookieOptions{
		Name:   cfg.Session.CookieName,
		Path:   cfg.Session.CookiePath,
		MaxAge: cfg.SessionDuration(),
		Secure: cfg.Session.CookieSecure,
	}
	switch cfg.Session.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: string(cfg.Redis.Password),
			DB:       cfg.Redis.DB,
		})
		store, err := session.NewRedisStore(client, cookie, session.WithLogger(logger))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("using redis session store", "addr", cfg.Redis.Addr)
		return store, func() { _ = client.Close() }, nil
	default:
		store, err := session.NewCookieStore([]byte(cfg.Session.Secret), []byte(cfg.Session.Salt), cookie, session.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using cookie session store")
		return store, func() {}, nil
	}
}
