// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package gate

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/hashicorp/capweb/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_RequireAuth(t *testing.T) {
	t.Parallel()
	authenticated := &session.Session{User: &session.User{Sub: "alice@example.com"}}

	tests := []struct {
		name         string
		target       string
		sess         *session.Session
		wantCode     int
		wantLocation string
	}{
		{
			name:         "no-session",
			target:       "/profile",
			wantCode:     http.StatusFound,
			wantLocation: "/auth/login?callbackUrl=%2Fprofile",
		},
		{
			name:         "empty-session",
			target:       "/profile",
			sess:         session.New(),
			wantCode:     http.StatusFound,
			wantLocation: "/auth/login?callbackUrl=%2Fprofile",
		},
		{
			name:         "keeps-query",
			target:       "/profile?tab=claims&x=a%20b",
			sess:         session.New(),
			wantCode:     http.StatusFound,
			wantLocation: "/auth/login?callbackUrl=" + url.QueryEscape("/profile?tab=claims&x=a%20b"),
		},
		{
			name:     "authenticated",
			target:   "/profile",
			sess:     authenticated,
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			var before session.Session
			if tt.sess != nil {
				before = *tt.sess
			}
			called := false
			h := New().RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.sess != nil {
				req = req.WithContext(session.NewContext(req.Context(), tt.sess))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(tt.wantCode, rec.Code)
			assert.Equal(tt.wantCode == http.StatusOK, called)
			if tt.wantLocation != "" {
				assert.Equal(tt.wantLocation, rec.Header().Get("Location"))
				u, err := url.Parse(rec.Header().Get("Location"))
				require.NoError(err)
				assert.Equal(req.URL.RequestURI(), u.Query().Get(CallbackURLParam))
			}
			if tt.sess != nil {
				assert.Equal(before, *tt.sess)
			}
		})
	}
}

func TestGate_LoginURL(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	g := New(WithLoginPath("/signin"), nil)
	assert.Equal("/signin", g.LoginURL(""))
	assert.Equal("/signin?callbackUrl=%2Fprofile%3Fa%3D1", g.LoginURL("/profile?a=1"))
	assert.Equal(DefaultLoginPath, New(WithLoginPath("")).LoginURL(""))
}
