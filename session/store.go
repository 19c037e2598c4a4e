// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"net/http"
	"time"
)

// Store loads and persists Sessions for requests. Implementations must be
// safe for concurrent use.
type Store interface {
	// Load returns the request's Session. A request without a session cookie,
	// or with an expired one, gets a new empty Session and no error. An
	// error means the cookie or the backing store is unusable.
	Load(r *http.Request) (*Session, error)

	// Save persists the Session and writes its cookie.
	Save(w http.ResponseWriter, r *http.Request, s *Session) error

	// Delete removes the Session and expires its cookie. The Session is
	// cleared in place.
	Delete(w http.ResponseWriter, r *http.Request, s *Session) error
}

// Cookie defaults.
const (
	DefaultCookieName   = "capweb_session"
	DefaultCookiePath   = "/"
	DefaultCookieMaxAge = 24 * time.Hour

	// MaxCookieSize is the largest cookie value browsers reliably keep.
	MaxCookieSize = 4096
)

// CookieOptions configure the session cookie. The cookie is always HttpOnly
// with SameSite=Lax.
type CookieOptions struct {
	Name   string
	Path   string
	MaxAge time.Duration
	Secure bool
}

// Validate applies defaults to empty fields and rejects a non-positive
// max-age.
func (o *CookieOptions) Validate() error {
	const op = "CookieOptions.Validate"
	if o == nil {
		return fmt.Errorf("%s: cookie options are nil: %w", op, ErrNilParameter)
	}
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = DefaultCookiePath
	}
	if o.MaxAge == 0 {
		o.MaxAge = DefaultCookieMaxAge
	}
	if o.MaxAge < time.Second {
		return fmt.Errorf("%s: max age %s is less than a second: %w", op, o.MaxAge, ErrInvalidParameter)
	}
	return nil
}

func (o CookieOptions) cookie(value string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		MaxAge:   int(o.MaxAge / time.Second),
		Expires:  now.Add(o.MaxAge),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) expired() *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
