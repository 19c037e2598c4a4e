// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/hashicorp/capweb/oidc"
)

// Session is the authentication state of one browser.
type Session struct {
	// ID is the store key of a stateful session. Empty for cookie sessions
	// and for sessions not saved yet.
	ID string `json:"-"`

	// User is set once a login completed. A nil User means the request is
	// not authenticated.
	User *User `json:"user,omitempty"`

	// Flow is the pending login attempt, if any.
	Flow *Flow `json:"flow,omitempty"`

	// previousID is deleted from a stateful store on the next Save.
	previousID string
}

// New returns an empty, unauthenticated Session.
func New() *Session {
	return &Session{}
}

// IsAuthenticated reports whether the session has a User.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.User != nil
}

// Login replaces the session's state with the user and renews its id, so a
// stateful store issues a fresh key for the authenticated session.
func (s *Session) Login(u *User) {
	s.User = u
	s.Flow = nil
	s.renew()
}

// Clear drops the user and any pending flow.
func (s *Session) Clear() {
	s.User = nil
	s.Flow = nil
}

func (s *Session) renew() {
	if s.ID != "" {
		s.previousID = s.ID
		s.ID = ""
	}
}

// User is the identity record of a logged in user. It is serialized into
// and out of the session on every request.
type User struct {
	Sub               string                 `json:"sub"`
	IDToken           string                 `json:"id_token,omitempty"`
	Name              string                 `json:"name,omitempty"`
	Email             string                 `json:"email,omitempty"`
	EmailVerified     bool                   `json:"email_verified,omitempty"`
	PreferredUsername string                 `json:"preferred_username,omitempty"`
	Claims            map[string]interface{} `json:"claims,omitempty"`
}

// NewUser builds a User from the provider's identity and the raw id_token,
// which is kept as the hint for logout.
func NewUser(id *oidc.Identity, idToken oidc.IDToken) *User {
	return &User{
		Sub:               id.Subject,
		IDToken:           string(idToken),
		Name:              id.Name,
		Email:             id.Email,
		EmailVerified:     id.EmailVerified,
		PreferredUsername: id.PreferredUsername,
		Claims:            id.Claims,
	}
}

// Flow is a pending login attempt kept in the session between the login
// redirect and the callback. It implements oidc.Request.
type Flow struct {
	StateID    string    `json:"state"`
	NonceID    string    `json:"nonce"`
	ReturnTo   string    `json:"return_to,omitempty"`
	Expiration time.Time `json:"exp"`
}

var _ oidc.Request = (*Flow)(nil)

// NewFlow records the request's state, nonce and expiration along with the
// local path to return to after login.
func NewFlow(r *oidc.Req, returnTo string) *Flow {
	return &Flow{
		StateID:    r.State(),
		NonceID:    r.Nonce(),
		ReturnTo:   returnTo,
		Expiration: r.Expiration(),
	}
}

func (f *Flow) State() string { return f.StateID }
func (f *Flow) Nonce() string { return f.NonceID }

// IsExpired returns true if the flow has expired. Supports the
// oidc.WithExpirySkew and oidc.WithNow options; the skew defaults to
// oidc.DefaultExpirySkew.
func (f *Flow) IsExpired(opt ...oidc.Option) bool {
	return oidc.Expired(f.Expiration, opt...)
}
