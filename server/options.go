// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"time"

	"github.com/hashicorp/capweb/views"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// DefaultPostLoginURL is where a completed login lands when it has no
// return path.
const DefaultPostLoginURL = "/profile"

// Server timeouts.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultShutdownTimeout   = 15 * time.Second
)

type serverOptions struct {
	withLogger          hclog.Logger
	withPostLoginURL    string
	withRegistry        *prometheus.Registry
	withViews           *views.Renderer
	withShutdownTimeout time.Duration
}

func serverDefaults() serverOptions {
	return serverOptions{
		withLogger:          hclog.NewNullLogger(),
		withPostLoginURL:    DefaultPostLoginURL,
		withShutdownTimeout: DefaultShutdownTimeout,
	}
}

func getServerOpts(opt ...Option) serverOptions {
	opts := serverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for the Server.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithPostLoginURL overrides DefaultPostLoginURL.
func WithPostLoginURL(u string) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && u != "" {
			v.withPostLoginURL = u
		}
	}
}

// WithRegistry provides the registry metrics are registered with and served
// from. A new registry is created by default.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && r != nil {
			v.withRegistry = r
		}
	}
}

// WithViews provides the view renderer. The embedded views are parsed by
// default.
func WithViews(r *views.Renderer) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && r != nil {
			v.withViews = r
		}
	}
}

// WithShutdownTimeout overrides DefaultShutdownTimeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && d > 0 {
			v.withShutdownTimeout = d
		}
	}
}
