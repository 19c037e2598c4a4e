// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"
)

// Request basically represents one OIDC authentication flow for a user. It
// contains the data needed to uniquely represent that one-time flow across the
// multiple interactions needed to complete the OIDC flow the user is
// attempting.
//
// State() and Nonce() cannot be equal, and will be used during the OIDC flow
// to prevent CSRF and replay attacks.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// request between the oidc request and the callback.
	State() string

	// Nonce is a unique nonce and a string value used to associate a Client
	// session with an ID Token, and to mitigate replay attacks.
	Nonce() string

	// IsExpired returns true if the request has expired.
	IsExpired(opt ...Option) bool
}

// DefaultRequestExpiry is how long a login attempt stays valid.
const DefaultRequestExpiry = 10 * time.Minute

// DefaultExpirySkew defines a default time skew when checking a Req's
// expiration.
const DefaultExpirySkew = 1 * time.Second

// Req represents the oidc request used for oidc flows and implements the
// Request interface.
type Req struct {
	state      string
	nonce      string
	expiration time.Time
	nowFunc    func() time.Time
}

// ensure that Req implements the Request interface
var _ Request = (*Req)(nil)

// NewRequest creates a new Req with a random state and nonce.
//
// Supported options: WithNow
func NewRequest(expireIn time.Duration, opt ...Option) (*Req, error) {
	const op = "NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	nonce, err := NewID("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}
	state, err := NewID("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	r := &Req{
		state:   state,
		nonce:   nonce,
		nowFunc: opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

func (r *Req) State() string         { return r.state }
func (r *Req) Nonce() string         { return r.nonce }
func (r *Req) Expiration() time.Time { return r.expiration }

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultExpirySkew.
func (r *Req) IsExpired(opt ...Option) bool {
	return Expired(r.expiration, append([]Option{WithNow(r.nowFunc)}, opt...)...)
}

// Expired returns true if expiration is not after now plus the expiry skew.
// Supports the WithExpirySkew and WithNow options, for Request
// implementations that keep their own expiration.
func Expired(expiration time.Time, opt ...Option) bool {
	opts := getReqOpts(opt...)
	now := time.Now
	if opts.withNowFunc != nil {
		now = opts.withNowFunc
	}
	return !expiration.After(now().Add(opts.withExpirySkew))
}

func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

func reqDefaults() reqOptions {
	return reqOptions{
		withExpirySkew: DefaultExpirySkew,
	}
}

func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
