// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/capweb/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFailingStore struct{ Store }

func (testFailingStore) Load(*http.Request) (*Session, error) {
	return nil, errors.New("store is down")
}

func TestContext(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	_, ok := FromContext(context.Background())
	assert.False(ok)

	_, ok = FromContext(NewContext(context.Background(), nil))
	assert.False(ok)

	s := New()
	got, ok := FromContext(NewContext(context.Background(), s))
	assert.True(ok)
	assert.Same(s, got)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("carries-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		store := testCookieStore(t)
		rec := httptest.NewRecorder()
		require.NoError(store.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), &Session{User: testUser()}))

		var got *Session
		h := Middleware(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
		out := httptest.NewRecorder()
		h.ServeHTTP(out, testRequestWithCookies(t, rec))
		assert.Equal(http.StatusNoContent, out.Code)
		require.NotNil(got)
		assert.Equal("alice@example.com", got.User.Sub)
	})

	t.Run("load-error", func(t *testing.T) {
		assert := assert.New(t)
		called := false
		h := Middleware(testFailingStore{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		out := httptest.NewRecorder()
		h.ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/profile", nil))
		assert.Equal(http.StatusInternalServerError, out.Code)
		assert.False(called)
	})
}

func TestFlowReader_Read(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	flow := &Flow{StateID: "st_1", NonceID: "n_1"}
	ctx := NewContext(context.Background(), &Session{Flow: flow})

	got, err := FlowReader{}.Read(ctx, "st_1")
	require.NoError(err)
	assert.Equal(flow, got)

	_, err = FlowReader{}.Read(ctx, "st_2")
	assert.ErrorIs(err, oidc.ErrNotFound)

	_, err = FlowReader{}.Read(NewContext(context.Background(), New()), "st_1")
	assert.ErrorIs(err, oidc.ErrNotFound)

	_, err = FlowReader{}.Read(context.Background(), "st_1")
	assert.ErrorIs(err, oidc.ErrNotFound)
}
