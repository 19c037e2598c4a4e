// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"

	"github.com/hashicorp/capweb/oidc"
)

// RequestReader defines an interface for finding and reading an oidc.Request
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler. The ctx is the callback request's
// context, so readers can find per-request data (like a session) in it.
type RequestReader interface {
	// Read an existing Request entry. The returned request's State()
	// must match the state used to look it up. A missing entry is reported
	// with oidc.ErrNotFound.
	Read(ctx context.Context, state string) (oidc.Request, error)
}
