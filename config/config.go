// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config loads capweb's configuration: defaults, overlaid by an
// optional YAML file named by CAPWEB_CONFIG_FILE, overlaid by environment
// variables. The result is validated once, reporting every problem found.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/capweb/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMissingParameter = errors.New("missing required parameter")
)

// Environment variables.
const (
	EnvConfigFile = "CAPWEB_CONFIG_FILE"

	EnvListenHost = "LISTEN_HOST"
	EnvListenPort = "LISTEN_PORT"
	EnvPort       = "PORT"

	EnvLogLevel = "LOG_LEVEL"
	EnvLogJSON  = "LOG_JSON"

	EnvSessionSecret       = "SESSION_SECRET"
	EnvSessionSalt         = "SESSION_SALT"
	EnvSessionCookieName   = "SESSION_COOKIE_NAME"
	EnvSessionCookieSecure = "SESSION_COOKIE_SECURE"
	EnvSessionCookiePath   = "SESSION_COOKIE_PATH"
	EnvSessionDuration     = "SESSION_DURATION"
	EnvSessionStore        = "SESSION_STORE"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvOIDCDomain        = "OIDC_DOMAIN"
	EnvOIDCClientID      = "OIDC_CLIENT_ID"
	EnvOIDCClientSecret  = "OIDC_CLIENT_SECRET"
	EnvOIDCCallbackURL   = "OIDC_CALLBACK_URL"
	EnvOIDCPostLoginURL  = "OIDC_POST_LOGIN_URL"
	EnvOIDCPostLogoutURL = "OIDC_POST_LOGOUT_URL"
	EnvOIDCProviderCA    = "OIDC_PROVIDER_CA"
)

// Session store kinds.
const (
	StoreCookie = "cookie"
	StoreRedis  = "redis"
)

// Secret is a string that redacts itself when printed or marshaled.
type Secret string

// RedactedSecret is the value a Secret prints as.
const RedactedSecret = "[REDACTED: secret]"

func (s Secret) String() string { return RedactedSecret }

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + RedactedSecret + `"`), nil
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return RedactedSecret, nil
}

// Config is capweb's configuration.
type Config struct {
	Listen  Listen  `yaml:"listen"`
	Log     Log     `yaml:"log"`
	Session Session `yaml:"session"`
	Redis   Redis   `yaml:"redis"`
	OIDC    OIDC    `yaml:"oidc"`
}

type Listen struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Session struct {
	Secret       Secret `yaml:"secret"`
	Salt         Secret `yaml:"salt"`
	CookieName   string `yaml:"cookie_name"`
	CookieSecure bool   `yaml:"cookie_secure"`
	CookiePath   string `yaml:"cookie_path"`
	// Duration is the cookie max-age in seconds.
	Duration int    `yaml:"duration"`
	Store    string `yaml:"store"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password Secret `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OIDC struct {
	// Domain is the IdP's domain or full issuer URL.
	Domain        string            `yaml:"domain"`
	ClientID      string            `yaml:"client_id"`
	ClientSecret  oidc.ClientSecret `yaml:"client_secret"`
	CallbackURL   string            `yaml:"callback_url"`
	PostLoginURL  string            `yaml:"post_login_url"`
	PostLogoutURL string            `yaml:"post_logout_url"`
	// ProviderCA is an optional PEM encoded CA for the IdP's TLS cert.
	ProviderCA string `yaml:"provider_ca"`
}

// Default returns the configuration before any file or environment is
// applied.
func Default() *Config {
	return &Config{
		Listen: Listen{Host: "0.0.0.0", Port: 3000},
		Log:    Log{Level: "info"},
		Session: Session{
			CookieName:   "capweb_session",
			CookieSecure: true,
			CookiePath:   "/",
			Duration:     86400,
			Store:        StoreCookie,
		},
		Redis: Redis{Addr: "localhost:6379"},
		OIDC:  OIDC{PostLoginURL: "/profile"},
	}
}

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(*options)

type options struct {
	withLookupEnv func(string) (string, bool)
}

func getOpts(opt ...Option) options {
	opts := options{withLookupEnv: os.LookupEnv}
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithLookupEnv replaces os.LookupEnv as the source of environment
// variables.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) {
		if fn != nil {
			o.withLookupEnv = fn
		}
	}
}

// Load builds and validates the configuration.
//
// Supported options: WithLookupEnv
func Load(opt ...Option) (*Config, error) {
	const op = "config.Load"
	opts := getOpts(opt...)
	c := Default()

	if path, ok := opts.withLookupEnv(EnvConfigFile); ok && path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := c.loadEnv(opts.withLookupEnv); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	const op = "Config.loadFile"
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: unable to read %q: %w", op, path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("%s: unable to parse %q: %w", op, path, err)
	}
	return nil
}

func (c *Config) loadEnv(lookup func(string) (string, bool)) error {
	const op = "Config.loadEnv"
	var retErr *multierror.Error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				retErr = multierror.Append(retErr, fmt.Errorf("%s: %s=%q is not an integer: %w", op, name, v, ErrInvalidParameter))
				return
			}
			*dst = i
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				retErr = multierror.Append(retErr, fmt.Errorf("%s: %s=%q is not a boolean: %w", op, name, v, ErrInvalidParameter))
				return
			}
			*dst = b
		}
	}

	str(EnvListenHost, &c.Listen.Host)
	integer(EnvPort, &c.Listen.Port)
	integer(EnvListenPort, &c.Listen.Port)

	str(EnvLogLevel, &c.Log.Level)
	boolean(EnvLogJSON, &c.Log.JSON)

	var secret, salt string
	str(EnvSessionSecret, &secret)
	str(EnvSessionSalt, &salt)
	if secret != "" {
		c.Session.Secret = Secret(secret)
	}
	if salt != "" {
		c.Session.Salt = Secret(salt)
	}
	str(EnvSessionCookieName, &c.Session.CookieName)
	boolean(EnvSessionCookieSecure, &c.Session.CookieSecure)
	str(EnvSessionCookiePath, &c.Session.CookiePath)
	integer(EnvSessionDuration, &c.Session.Duration)
	str(EnvSessionStore, &c.Session.Store)

	var redisPassword string
	str(EnvRedisAddr, &c.Redis.Addr)
	str(EnvRedisPassword, &redisPassword)
	if redisPassword != "" {
		c.Redis.Password = Secret(redisPassword)
	}
	integer(EnvRedisDB, &c.Redis.DB)

	var clientSecret string
	str(EnvOIDCDomain, &c.OIDC.Domain)
	str(EnvOIDCClientID, &c.OIDC.ClientID)
	str(EnvOIDCClientSecret, &clientSecret)
	if clientSecret != "" {
		c.OIDC.ClientSecret = oidc.ClientSecret(clientSecret)
	}
	str(EnvOIDCCallbackURL, &c.OIDC.CallbackURL)
	str(EnvOIDCPostLoginURL, &c.OIDC.PostLoginURL)
	str(EnvOIDCPostLogoutURL, &c.OIDC.PostLogoutURL)
	str(EnvOIDCProviderCA, &c.OIDC.ProviderCA)

	return retErr.ErrorOrNil()
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	var retErr *multierror.Error
	missing := func(name string) {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: %s: %w", op, name, ErrMissingParameter))
	}
	invalid := func(format string, args ...interface{}) {
		retErr = multierror.Append(retErr, fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, args...), ErrInvalidParameter))
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		invalid("listen port %d is out of range", c.Listen.Port)
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		invalid("unknown log level %q", c.Log.Level)
	}

	if c.Session.CookieName == "" {
		missing(EnvSessionCookieName)
	}
	if !strings.HasPrefix(c.Session.CookiePath, "/") {
		invalid("%s %q must start with /", EnvSessionCookiePath, c.Session.CookiePath)
	}
	if c.Session.Duration < 1 {
		invalid("%s must be a positive number of seconds", EnvSessionDuration)
	}
	// the secret and salt only key the cookie store's encryption
	switch c.Session.Store {
	case StoreCookie:
		switch {
		case c.Session.Secret == "":
			missing(EnvSessionSecret)
		case len(c.Session.Secret) < 32:
			invalid("%s must be at least 32 bytes", EnvSessionSecret)
		}
		switch {
		case c.Session.Salt == "":
			missing(EnvSessionSalt)
		case len(c.Session.Salt) < 16:
			invalid("%s must be at least 16 bytes", EnvSessionSalt)
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			missing(EnvRedisAddr)
		} else if _, _, err := net.SplitHostPort(c.Redis.Addr); err != nil {
			invalid("%s %q is not host:port", EnvRedisAddr, c.Redis.Addr)
		}
	default:
		invalid("%s %q must be %q or %q", EnvSessionStore, c.Session.Store, StoreCookie, StoreRedis)
	}

	if c.OIDC.Domain == "" {
		missing(EnvOIDCDomain)
	}
	if c.OIDC.ClientID == "" {
		missing(EnvOIDCClientID)
	}
	if c.OIDC.ClientSecret == "" {
		missing(EnvOIDCClientSecret)
	}
	switch {
	case c.OIDC.CallbackURL == "":
		missing(EnvOIDCCallbackURL)
	case !isAbsoluteURL(c.OIDC.CallbackURL):
		invalid("%s %q must be an absolute URL", EnvOIDCCallbackURL, c.OIDC.CallbackURL)
	}
	if c.OIDC.PostLoginURL == "" {
		missing(EnvOIDCPostLoginURL)
	}
	switch {
	case c.OIDC.PostLogoutURL == "":
		missing(EnvOIDCPostLogoutURL)
	case !isAbsoluteURL(c.OIDC.PostLogoutURL):
		invalid("%s %q must be an absolute URL", EnvOIDCPostLogoutURL, c.OIDC.PostLogoutURL)
	}

	return retErr.ErrorOrNil()
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Addr is the address the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Listen.Host, strconv.Itoa(c.Listen.Port))
}

// SessionDuration is the session cookie's max-age.
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.Session.Duration) * time.Second
}

// Issuer is the IdP's issuer URL derived from the configured domain.
func (c *Config) Issuer() string {
	return oidc.IssuerFromDomain(c.OIDC.Domain)
}

// LogLevel is the parsed hclog level.
func (c *Config) LogLevel() hclog.Level {
	return hclog.LevelFromString(c.Log.Level)
}
