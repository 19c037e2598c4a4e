// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultScopes are requested in addition to "openid" unless the Config
// is created WithScopes.
var DefaultScopes = []string{"profile", "email"}

// Config represents the configuration for an OIDC provider used by a relying
// party for the authorization code flow.
type Config struct {
	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret.
	ClientSecret ClientSecret

	// Scopes is a list of oidc scopes to request of the provider. The
	// required "openid" scope is always the first entry.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms for
	// id_token verification.
	SupportedSigningAlgs []Alg

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// PostLogoutRedirectURL is sent as post_logout_redirect_uri when
	// building a logout URL. Optional.
	PostLogoutRedirectURL string

	// Audiences is an optional list of case-sensitive strings used when
	// verifying an id_token's "aud" claim.
	Audiences []string

	// ProviderCA is an optional PEM encoded CA cert to use when sending
	// requests to the provider.
	ProviderCA string

	// UserInfo enables merging the provider's userinfo claims into the
	// identity after a successful exchange.
	UserInfo bool

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.
//
// The issuer may be given as a bare domain ("example.zitadel.cloud"), in
// which case the https scheme is assumed.
//
// Supported options: WithProviderCA, WithScopes, WithAudiences,
// WithPostLogoutRedirectURL, WithUserInfo, WithNow
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:                IssuerFromDomain(issuer),
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		SupportedSigningAlgs:  supported,
		RedirectURL:           redirectURL,
		Scopes:                opts.withScopes,
		Audiences:             opts.withAudiences,
		ProviderCA:            opts.withProviderCA,
		PostLogoutRedirectURL: opts.withPostLogoutRedirectURL,
		UserInfo:              opts.withUserInfo,
		NowFunc:               opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// IssuerFromDomain turns a bare provider domain into an issuer URL. Values
// that already carry a scheme are returned unchanged, minus any trailing
// slash.
func IssuerFromDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return strings.TrimSuffix(domain, "/")
}

// Validate the provider configuration. Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable
// via an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client ID is empty: %w", op, ErrInvalidParameter)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if _, err := url.Parse(c.RedirectURL); err != nil {
		return fmt.Errorf("%s: redirect URL %q is invalid: %w", op, c.RedirectURL, ErrInvalidParameter)
	}
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("%s: issuer %s is invalid (%s): %w", op, c.Issuer, err, ErrInvalidIssuer)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%s: issuer %s scheme is not http or https: %w", op, c.Issuer, ErrInvalidIssuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%s: issuer %s has a query or fragment: %w", op, c.Issuer, ErrInvalidIssuer)
	}
	if len(c.SupportedSigningAlgs) == 0 {
		return fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter)
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			return fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrInvalidParameter)
		}
	}
	if c.ProviderCA != "" {
		if _, err := c.certPool(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// HTTPClient creates a new http client for the configured provider. It uses
// the ProviderCA if set, otherwise the system roots.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		pool, err := c.certPool()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

func (c *Config) certPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
		return nil, fmt.Errorf("could not parse CA PEM value: %w", ErrInvalidCACert)
	}
	return pool, nil
}

// Now returns the current time using the optional NowFunc.
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// configOptions is the set of available options for Config
type configOptions struct {
	withScopes                []string
	withAudiences             []string
	withProviderCA            string
	withPostLogoutRedirectURL string
	withUserInfo              bool
	withNowFunc               func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScopes: DefaultScopes,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in,
// making sure "openid" leads the scope list exactly once.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	scopes := []string{oidc.ScopeOpenID}
	for _, s := range opts.withScopes {
		if s == oidc.ScopeOpenID || s == "" {
			continue
		}
		scopes = append(scopes, s)
	}
	opts.withScopes = scopes
	return opts
}
