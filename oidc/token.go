// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// Token is the result of a successful, verified code exchange.
type Token struct {
	IDToken     IDToken
	AccessToken AccessToken
	Expiry      time.Time

	// Claims are the verified id_token claims.
	Claims map[string]interface{}

	oauth2 *oauth2.Token
}

// NewToken creates a Token from an oauth2 token and its verified id_token
// claims.
func NewToken(idToken IDToken, t *oauth2.Token, claims map[string]interface{}) (*Token, error) {
	const op = "NewToken"
	if idToken == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrMissingIDToken)
	}
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	return &Token{
		IDToken:     idToken,
		AccessToken: AccessToken(t.AccessToken),
		Expiry:      t.Expiry,
		Claims:      claims,
		oauth2:      t,
	}, nil
}

// StaticTokenSource returns a TokenSource that always returns the token's
// oauth2 token, or nil when there's no access token to use.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	if t == nil || t.oauth2 == nil || t.oauth2.AccessToken == "" {
		return nil
	}
	return oauth2.StaticTokenSource(t.oauth2)
}
