// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"golang.org/x/text/language"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: Config, Req and Expired.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *configOptions:
			v.withNowFunc = now
		case *reqOptions:
			v.withNowFunc = now
		}
	}
}

// WithScopes provides an optional list of scopes for the Config. The required
// "openid" scope is always requested.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences for the Config, which
// are checked against an id_token's "aud" claim in addition to the client id.
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional PEM encoded CA cert for the Config. It
// is used when making requests to the provider.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withProviderCA = cert
		}
	}
}

// WithPostLogoutRedirectURL provides the URL the provider redirects back to
// after RP-initiated logout.
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withPostLogoutRedirectURL = u
		}
	}
}

// WithUserInfo enables fetching the provider's userinfo endpoint after a
// successful exchange, merging its claims into the Identity.
func WithUserInfo() Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withUserInfo = true
		}
	}
}

// WithExpirySkew provides an optional expiry skew duration for Req.IsExpired
// and Expired.
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withExpirySkew = d
		}
	}
}

// authURLOptions is the set of available options for Provider.AuthURL
type authURLOptions struct {
	withUILocales []language.Tag
}

func getAuthURLOpts(opt ...Option) authURLOptions {
	var opts authURLOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithUILocales provides the end-user's preferred languages for the
// provider's login pages, in order of preference. They're sent as the
// "ui_locales" auth URL parameter.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if v, ok := o.(*authURLOptions); ok {
			v.withUILocales = locales
		}
	}
}
