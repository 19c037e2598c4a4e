// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package session provides the per-browser authentication state for capweb.

A Session is resolved once per request by Middleware and carried in the
request's context (see FromContext). A request is authenticated if and only
if its Session has a User.

Two Store implementations are provided:

* CookieStore: stateless. The whole Session is an encrypted JWE cookie
(dir + A256GCM) whose key is derived from a secret and salt with HKDF.

* RedisStore: stateful. The cookie only carries an opaque session id and the
Session is kept in redis with the cookie's max-age as its TTL.
*/
package session
