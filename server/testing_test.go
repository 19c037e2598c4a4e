// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/capweb/oidc"
	"github.com/hashicorp/capweb/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testBaseURL       = "https://rp.example.com"
	testCallbackURL   = testBaseURL + "/auth/callback"
	testPostLogoutURL = testBaseURL + "/logout/callback"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testSalt   = []byte("fedcba9876543210")
)

type testEnv struct {
	tp       *oidc.TestProvider
	provider *oidc.Provider
	store    session.Store
	srv      *Server
	registry *prometheus.Registry
}

type testEnvOpts struct {
	providerOpts []oidc.Option
	serverOpts   []Option
	store        session.Store
	configureIdP func(tp *oidc.TestProvider)
}

func newTestCookieStore(t *testing.T, opt ...session.Option) *session.CookieStore {
	t.Helper()
	store, err := session.NewCookieStore(testSecret, testSalt, session.CookieOptions{MaxAge: time.Hour}, opt...)
	require.NoError(t, err)
	return store
}

func newTestEnv(t *testing.T, o testEnvOpts) *testEnv {
	t.Helper()
	require := require.New(t)
	tp := oidc.StartTestProvider(t)
	if o.configureIdP != nil {
		o.configureIdP(tp)
	}
	providerOpts := append([]oidc.Option{oidc.WithPostLogoutRedirectURL(testPostLogoutURL)}, o.providerOpts...)
	p, err := oidc.NewProvider(tp.NewConfig(t, testCallbackURL, providerOpts...))
	require.NoError(err)
	t.Cleanup(p.Done)

	store := o.store
	if store == nil {
		store = newTestCookieStore(t)
	}
	registry := prometheus.NewRegistry()
	srv, err := New(p, store, append([]Option{WithRegistry(registry)}, o.serverOpts...)...)
	require.NoError(err)
	return &testEnv{tp: tp, provider: p, store: store, srv: srv, registry: registry}
}

// testBrowser sends requests to a handler, keeping the cookies it sets.
type testBrowser struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newTestBrowser(t *testing.T, h http.Handler) *testBrowser {
	return &testBrowser{t: t, h: h, cookies: map[string]*http.Cookie{}}
}

func (b *testBrowser) get(target string) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	b.h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *testBrowser) setCookie(c *http.Cookie) {
	b.cookies[c.Name] = c
}

// authorize follows an authorization URL at the test provider and returns
// the callback request URI it redirects back to.
func (e *testEnv) authorize(t *testing.T, authURL string) string {
	t.Helper()
	require := require.New(t)
	client, err := e.provider.Config().HTTPClient()
	require.NoError(err)
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	require.Equal(testCallbackURL, loc.Scheme+"://"+loc.Host+loc.Path)
	return loc.RequestURI()
}

// login runs a full login from target through the provider and returns the
// callback's response.
func (e *testEnv) login(t *testing.T, b *testBrowser, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := b.get(target)
	require.Equal(t, http.StatusFound, rec.Code)
	return b.get(e.authorize(t, rec.Header().Get("Location")))
}

// testDeleteFailStore is a store that can't delete sessions.
type testDeleteFailStore struct {
	session.Store
}

func (testDeleteFailStore) Delete(http.ResponseWriter, *http.Request, *session.Session) error {
	return errors.New("store is read only")
}
