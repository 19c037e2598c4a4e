// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is the relying party side of the OpenID Connect authorization
code flow used by capweb.

Primary types provided by the package:

* Config: the provider configuration (issuer, client id/secret, redirect URL,
scopes, post-logout redirect, supported signing algorithms, optional CA).

* Provider: discovers the provider's metadata once and is then shared by all
requests. It generates auth URLs, exchanges codes for verified tokens,
fetches user info and builds RP-initiated logout URLs.

* Request: one login attempt (state, nonce, expiration).

* Token and Identity: the verified result of an exchange and the user
identity built from it.

* TestProvider: an in-process provider for tests.

The callback sub-package creates the http.HandlerFunc for the third leg of
the flow, where the authorization code is exchanged for tokens.
*/
package oidc
