// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrInvalidCACert             = errors.New("invalid CA certificate")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrIDGeneratorFailed         = errors.New("id generation failed")
	ErrExpiredRequest            = errors.New("request is expired")
	ErrInvalidResponseState      = errors.New("invalid OIDC response state")
	ErrMissingIDToken            = errors.New("id_token is missing")
	ErrIDTokenVerificationFailed = errors.New("id_token verification failed")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrMissingClaim              = errors.New("missing required claim")
	ErrNotFound                  = errors.New("not found")
	ErrExchangeFailed            = errors.New("code exchange failed")
	ErrUserInfoFailed            = errors.New("user info failed")
	ErrUnsupportedLogout         = errors.New("provider does not support RP-initiated logout")
)
