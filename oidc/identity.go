// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
)

// Identity is the user identity produced by a successful login. It is built
// from the verified id_token claims, optionally merged with userinfo claims.
type Identity struct {
	Subject           string
	Name              string
	Email             string
	EmailVerified     bool
	PreferredUsername string

	// Claims holds every claim received, id_token claims first and then
	// userinfo claims on top. The "sub" claim is never overwritten.
	Claims map[string]interface{}
}

// NewIdentity builds an Identity from a claim set. A "sub" claim is required.
func NewIdentity(claims map[string]interface{}) (*Identity, error) {
	const op = "NewIdentity"
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%s: sub: %w", op, ErrMissingClaim)
	}
	id := &Identity{
		Subject: sub,
		Claims:  make(map[string]interface{}, len(claims)),
	}
	id.merge(claims)
	return id, nil
}

func (i *Identity) merge(claims map[string]interface{}) {
	for k, v := range claims {
		if k == "sub" {
			continue
		}
		i.Claims[k] = v
	}
	i.Claims["sub"] = i.Subject
	i.Name, _ = i.Claims["name"].(string)
	i.Email, _ = i.Claims["email"].(string)
	i.EmailVerified, _ = i.Claims["email_verified"].(bool)
	i.PreferredUsername, _ = i.Claims["preferred_username"].(string)
}
